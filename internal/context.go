package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	ContextUserKey    ctxKey = "userID"
	ContextSessionKey ctxKey = "sessionID"
	ContextClientKey  ctxKey = "client"
)

// ClientInfo describes where a request came from. It is recorded on sessions
// and audit entries.
type ClientInfo struct {
	RemoteAddr string
	UserAgent  string
	RequestID  string
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	userID, ok := ctx.Value(ContextUserKey).(int64)
	return userID, ok && userID > 0
}

func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ContextUserKey, userID)
}

// SessionIDFromContext returns the raw session id extracted from the request
// transport, or "" when the request carries none.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sid, ok := ctx.Value(ContextSessionKey).(string); ok {
		return sid
	}
	return ""
}

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextSessionKey, sessionID)
}

func ClientFromContext(ctx context.Context) ClientInfo {
	if ctx == nil {
		return ClientInfo{}
	}
	if c, ok := ctx.Value(ContextClientKey).(ClientInfo); ok {
		return c
	}
	return ClientInfo{}
}

func ContextWithClient(ctx context.Context, client ClientInfo) context.Context {
	return context.WithValue(ctx, ContextClientKey, client)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
