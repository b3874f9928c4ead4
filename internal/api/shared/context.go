// Package shared provides helpers common to all API handlers.
package shared

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// UserIDContextKey is the context key under which the authenticated
// owner's ID is stored by the identity middleware.
const UserIDContextKey contextKey = "user_id"

// WithUserID returns a context carrying the owner's ID.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// GetUserID extracts the owner's ID from the context. The second return
// value is false when no identity middleware ran.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}
