package authz

import "context"

// Principal is the authenticated identity attached to a request after the
// access token has been verified. Handlers read it from the request context.
type Principal struct {
	AccountID      int
	Email          string
	Role           Role
	AssignedSector Sector
	KycLevel       int
}

type contextKey struct{}

var principalKey contextKey

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the request principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}
