package auth

import (
	"context"
)

type contextKey string

const sessionContextKey contextKey = "auth_session"

// SessionFromContext extracts the Session from context
func SessionFromContext(ctx context.Context) *Session {
	sess, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return sess
}

// ContextWithSession adds the Session to context
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}
