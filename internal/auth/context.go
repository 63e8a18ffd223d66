package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// Identity carries the authenticated user for a request. Every store query
// issued on behalf of a request is scoped by this user ID.
type Identity struct {
	UserID uuid.UUID
	Name   string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// UserID returns the authenticated user's ID, or uuid.Nil when the context
// carries no identity.
func UserID(ctx context.Context) uuid.UUID {
	id, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil
	}
	return id.UserID
}
