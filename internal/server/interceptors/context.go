package interceptors

import (
	"context"

	"haritsetu/backend/internal/security"
)

type contextKey struct{ name string }

var sessionKey = contextKey{"session"}

// WithSession returns a context carrying the caller's validated session.
func WithSession(ctx context.Context, s security.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom returns the session set by AuthUnary, if any.
func SessionFrom(ctx context.Context) (security.Session, bool) {
	s, ok := ctx.Value(sessionKey).(security.Session)
	return s, ok
}

// GetAccountID returns the account_id of the caller's session and true if set; otherwise "", false.
func GetAccountID(ctx context.Context) (string, bool) {
	s, ok := SessionFrom(ctx)
	if !ok || s.AccountID == "" {
		return "", false
	}
	return s.AccountID, true
}
