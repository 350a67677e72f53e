package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

const (
	// IdentityKey is the context key for the authenticated identity
	IdentityKey contextKey = "identity"
)

// Identity is the per-request authentication result: either a verified
// principal or the anonymous sentinel. Immutable once set; never persisted.
type Identity struct {
	Subject   string
	Issuer    string
	Anonymous bool
}

// AnonymousIdentity is the sentinel identity assigned when the
// verification subsystem is not configured
func AnonymousIdentity() *Identity {
	return &Identity{Subject: "anonymous", Anonymous: true}
}

// GetIdentityFromContext retrieves the identity from context
func GetIdentityFromContext(ctx context.Context) *Identity {
	if val := ctx.Value(IdentityKey); val != nil {
		if identity, ok := val.(*Identity); ok {
			return identity
		}
	}
	return nil
}

// WithIdentity adds an identity to the context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetRequestIDFromContext retrieves the chi request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}
