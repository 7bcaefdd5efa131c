package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/janseva/gateway/internal/authz"
	"github.com/janseva/gateway/internal/services"
)

type stubVerifier struct {
	claims *services.AccessClaims
	err    error
}

func (v *stubVerifier) VerifyAccess(_ string) (*services.AccessClaims, error) {
	return v.claims, v.err
}

func okHandler(captured **authz.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			p, _ := authz.PrincipalFromContext(r.Context())
			*captured = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func claimsFor(accountID, role, sector string, kycLevel int) *services.AccessClaims {
	c := &services.AccessClaims{
		Email:          "user@example.com",
		Role:           role,
		AssignedSector: sector,
		KycLevel:       kycLevel,
	}
	c.Subject = accountID
	return c
}

func TestAuthenticate(t *testing.T) {
	t.Run("valid bearer token populates the principal", func(t *testing.T) {
		var principal *authz.Principal
		handler := Authenticate(&stubVerifier{claims: claimsFor("42", "sector_manager", "healthcare", 2)})(okHandler(&principal))

		r := httptest.NewRequest("GET", "/protected", nil)
		r.Header.Set("Authorization", "Bearer some-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotNil(t, principal)
		assert.Equal(t, 42, principal.AccountID)
		assert.Equal(t, authz.RoleSectorManager, principal.Role)
		assert.Equal(t, authz.SectorHealthcare, principal.AssignedSector)
		assert.Equal(t, 2, principal.KycLevel)
	})

	t.Run("missing header", func(t *testing.T) {
		handler := Authenticate(&stubVerifier{})(okHandler(nil))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/protected", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		handler := Authenticate(&stubVerifier{})(okHandler(nil))

		r := httptest.NewRequest("GET", "/protected", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejected token", func(t *testing.T) {
		handler := Authenticate(&stubVerifier{err: errors.New("expired")})(okHandler(nil))

		r := httptest.NewRequest("GET", "/protected", nil)
		r.Header.Set("Authorization", "Bearer stale-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func withPrincipal(r *http.Request, p *authz.Principal) *http.Request {
	return r.WithContext(authz.WithPrincipal(r.Context(), p))
}

func TestRequireRoles(t *testing.T) {
	handler := RequireRoles(authz.RoleGovernmentOfficial)(okHandler(nil))

	t.Run("sufficient role passes", func(t *testing.T) {
		r := withPrincipal(httptest.NewRequest("GET", "/admin", nil),
			&authz.Principal{AccountID: 1, Role: authz.RoleGovernmentOfficial})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("lower role refused", func(t *testing.T) {
		r := withPrincipal(httptest.NewRequest("GET", "/admin", nil),
			&authz.Principal{AccountID: 1, Role: authz.RoleCitizen})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("system_admin is not implied", func(t *testing.T) {
		r := withPrincipal(httptest.NewRequest("GET", "/admin", nil),
			&authz.Principal{AccountID: 1, Role: authz.RoleSystemAdmin})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("no principal", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/admin", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireSectorAccess(t *testing.T) {
	handler := RequireSectorAccess(okHandler(nil))

	t.Run("manager reaches own sector", func(t *testing.T) {
		r := withPrincipal(httptest.NewRequest("GET", "/records?sector=healthcare", nil),
			&authz.Principal{Role: authz.RoleSectorManager, AssignedSector: authz.SectorHealthcare})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("manager refused another sector", func(t *testing.T) {
		r := withPrincipal(httptest.NewRequest("GET", "/records?sector=agriculture", nil),
			&authz.Principal{Role: authz.RoleSectorManager, AssignedSector: authz.SectorHealthcare})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("official crosses sectors freely", func(t *testing.T) {
		r := withPrincipal(httptest.NewRequest("GET", "/records?sector=agriculture", nil),
			&authz.Principal{Role: authz.RoleGovernmentOfficial})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown sector is a validation error", func(t *testing.T) {
		r := withPrincipal(httptest.NewRequest("GET", "/records?sector=unknown", nil),
			&authz.Principal{Role: authz.RoleGovernmentOfficial})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRequireKycLevel(t *testing.T) {
	handler := RequireKycLevel(2)(okHandler(nil))

	r := withPrincipal(httptest.NewRequest("GET", "/verified-only", nil),
		&authz.Principal{Role: authz.RoleCitizen, KycLevel: 2})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	r = withPrincipal(httptest.NewRequest("GET", "/verified-only", nil),
		&authz.Principal{Role: authz.RoleCitizen, KycLevel: 0})
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(okHandler(nil))

	t.Run("hardening set on every response", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/kyc/status", nil))

		h := w.Header()
		assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
		assert.Contains(t, h.Get("Strict-Transport-Security"), "max-age=31536000")
		assert.NotEmpty(t, h.Get("Content-Security-Policy"))
		assert.NotEmpty(t, h.Get("Referrer-Policy"))
		assert.NotEmpty(t, h.Get("Permissions-Policy"))
		assert.Empty(t, h.Get("Cache-Control"))
	})

	t.Run("auth responses are never cached", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/auth/login", nil))

		assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
		assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
		assert.Equal(t, "0", w.Header().Get("Expires"))
	})
}
