package auth

import "context"

// identityKey is a private type for the identity context key.
type identityKey struct{}

// anonymousKey marks requests to endpoints that opted out of authorization.
type anonymousKey struct{}

// SetIdentity stores the authenticated identity in the context.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity.
// Returns nil if no identity is set.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}

// AllowAnonymous marks the request as reaching an endpoint that does not
// require an identity.
func AllowAnonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousKey{}, true)
}

// AnonymousAllowed reports whether AllowAnonymous was applied.
func AnonymousAllowed(ctx context.Context) bool {
	v, _ := ctx.Value(anonymousKey{}).(bool)
	return v
}
