package gateway

import (
	"context"

	"github.com/harun/groqchat/pkg/session"
)

type ctxKey string

const (
	clientIDKey ctxKey = "clientID"
	sessionKey  ctxKey = "session"
)

func withClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

func clientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(clientIDKey).(string); ok {
		return value
	}
	return ""
}

func withSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

func sessionFromContext(ctx context.Context) *session.Session {
	if ctx == nil {
		return nil
	}
	if value, ok := ctx.Value(sessionKey).(*session.Session); ok {
		return value
	}
	return nil
}

func sessionIDFromContext(ctx context.Context) string {
	if sess := sessionFromContext(ctx); sess != nil {
		return sess.ID
	}
	return ""
}
