package identity

import (
	"context"

	"github.com/goliatone/go-identity/permissions"
)

var resolutionCtxKey = &contextKey{"resolution"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext stores the resolved identity in ctx.
func WithContext(ctx context.Context, res *Resolution) context.Context {
	ctx = context.WithValue(ctx, resolutionCtxKey, res)
	if res != nil && res.Claims != nil {
		ctx = WithClaimsContext(ctx, res.Claims)
	}
	return ctx
}

// FromContext finds the resolved identity in ctx.
func FromContext(ctx context.Context) (*Resolution, bool) {
	res, ok := ctx.Value(resolutionCtxKey).(*Resolution)
	return res, ok && res != nil
}

// ActiveUser returns the user the request acts as.
func ActiveUser(ctx context.Context) (*User, bool) {
	res, ok := FromContext(ctx)
	if !ok || res.Active == nil {
		return nil, false
	}
	return res.Active, true
}

// WithClaimsContext sets the claims in the given context
func WithClaimsContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// GetClaims extracts the claims from the context
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsCtxKey).(*Claims)
	return claims, ok && claims != nil
}

// Can checks req against the permission snapshot of the claims in ctx.
func Can(ctx context.Context, req permissions.Requirement) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}
	return claims.HasPermission(req)
}
