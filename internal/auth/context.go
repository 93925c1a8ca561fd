// ABOUTME: Authenticated identity propagation through request contexts
// ABOUTME: Provides WithIdentity/IdentityFromContext for handlers and middleware

package auth

import (
	"context"
)

// Identity is the authenticated caller extracted from a verified access
// token and the user store. Superusers bypass all permission checks.
type Identity struct {
	ID          int64
	Username    string
	IsSuperuser bool
}

// identityKey is the context key type for the Identity value.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context. The second
// return is false when the request was not authenticated.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}
