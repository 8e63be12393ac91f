package auth

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/stagekeeper/internal/common"
)

type ctxKey string

const sessionIDKey ctxKey = "sessionID"

// WithSession returns a copy of ctx carrying sessionID.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionFromContext returns the session id stored by WithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// ContextSessions resolves the current session from the request context.
type ContextSessions struct{}

func (ContextSessions) CurrentSessionID(ctx context.Context) (string, error) {
	id, ok := SessionFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("no session in context: %w", common.ErrorUnauthorized)
	}
	return id, nil
}
