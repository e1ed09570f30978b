package handlers

import (
	"context"

	"github.com/coursedeck/backend/internal/models"
)

type ctxKey string

const identityKey ctxKey = "identity"

// withIdentity stores the sanitized authenticated identity on the context.
func withIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the authenticated identity attached by the
// authentication middleware. ok is false on unauthenticated requests.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(models.Identity)
	return identity, ok
}
