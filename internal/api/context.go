package api

import "context"

type contextKey string

const userContextKey contextKey = "user"

// UserFromContext returns the authenticated user id, or "" when absent
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userContextKey).(string)
	return id
}

// ContextWithUser stores the authenticated user id in the context
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}
