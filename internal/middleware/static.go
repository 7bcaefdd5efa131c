package middleware

import (
	"net/http"
	"os"
	"path/filepath"
)

const fallbackSpec = `{"openapi":"3.0.0","info":{"title":"JanSeva Identity Gateway","version":"dev"},"paths":{}}`

// APISpecServer serves the OpenAPI documents consumed by the swagger UI.
// When the docs directory is absent (stripped container images) it falls
// back to a minimal placeholder document instead of a 404.
func APISpecServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))

		if _, err := os.Stat(path); err == nil {
			w.Header().Set("Cache-Control", "public, max-age=86400")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write([]byte(fallbackSpec))
	})
}
