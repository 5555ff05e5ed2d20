// Package requestctx carries authenticated caller identity through contexts.
package requestctx

import (
	"context"
	"strings"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID string
	Email  string
}

// identityContextKey is the context key for authenticated caller identity.
type identityContextKey struct{}

// WithIdentity stores a caller identity in context. Emails are lower-cased
// so downstream comparisons are canonical.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	identity.UserID = strings.TrimSpace(identity.UserID)
	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the caller identity stored in context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || identity.UserID == "" {
		return Identity{}, false
	}
	return identity, true
}
