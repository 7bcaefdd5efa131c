package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeaders applies the browser hardening set on every response.
// Authentication endpoints additionally forbid any caching, so tokens and
// codes never land in a shared cache or the browser history.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if strings.Contains(r.URL.Path, "/auth/") {
			h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		next.ServeHTTP(w, r)
	})
}
