package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/janseva/gateway/internal/authz"
	"github.com/janseva/gateway/internal/services"
)

// TokenVerifier validates an access token and returns its claims.
type TokenVerifier interface {
	VerifyAccess(token string) (*services.AccessClaims, error)
}

// Authenticate verifies the Bearer token and attaches the principal to the
// request context. Step-up and refresh tokens are rejected here: only access
// tokens pass.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendFlowError(w, services.NewFlowError(services.CodeAuthentication, "Authorization header required"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				services.SendFlowError(w, services.NewFlowError(services.CodeAuthentication, "Invalid authorization header format"))
				return
			}

			claims, err := verifier.VerifyAccess(parts[1])
			if err != nil {
				services.SendFlowError(w, services.NewFlowError(services.CodeAuthentication, "Invalid or expired token"))
				return
			}

			accountID, err := strconv.Atoi(claims.Subject)
			if err != nil {
				services.SendFlowError(w, services.NewFlowError(services.CodeAuthentication, "Invalid token subject"))
				return
			}

			principal := &authz.Principal{
				AccountID:      accountID,
				Email:          claims.Email,
				Role:           authz.Role(claims.Role),
				AssignedSector: authz.Sector(claims.AssignedSector),
				KycLevel:       claims.KycLevel,
			}
			next.ServeHTTP(w, r.WithContext(authz.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRoles allows only principals whose role satisfies the requirement.
// Must run after Authenticate.
func RequireRoles(required ...authz.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := authz.PrincipalFromContext(r.Context())
			if !ok {
				services.SendFlowError(w, services.NewFlowError(services.CodeAuthentication, "Not authenticated"))
				return
			}
			if !authz.Authorize(required, principal.Role) {
				services.SendFlowError(w, services.NewFlowError(services.CodeAuthorization, "Insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSectorAccess scopes sector managers to their assigned sector. The
// requested sector comes from the {sector} URL parameter, or the "sector"
// query parameter when the route carries none.
func RequireSectorAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := authz.PrincipalFromContext(r.Context())
		if !ok {
			services.SendFlowError(w, services.NewFlowError(services.CodeAuthentication, "Not authenticated"))
			return
		}

		requested := chi.URLParam(r, "sector")
		if requested == "" {
			requested = r.URL.Query().Get("sector")
		}
		if requested != "" && !authz.ValidSector(authz.Sector(requested)) {
			services.SendFlowError(w, services.NewFlowError(services.CodeValidation, "Unknown sector"))
			return
		}
		if !authz.CheckSectorAccess(principal.Role, principal.AssignedSector, authz.Sector(requested)) {
			services.SendFlowError(w, services.NewFlowError(services.CodeAuthorization, "Sector not assigned to you"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireKycLevel gates operations on a minimum identity verification level.
func RequireKycLevel(min int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := authz.PrincipalFromContext(r.Context())
			if !ok {
				services.SendFlowError(w, services.NewFlowError(services.CodeAuthentication, "Not authenticated"))
				return
			}
			if principal.KycLevel < min {
				services.SendFlowError(w, services.NewFlowError(services.CodeAuthorization, "Identity verification required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
