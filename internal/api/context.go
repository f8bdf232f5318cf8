package api

import (
	"context"
	"errors"

	"github.com/mymindmirror/mindmirror/internal/journal"
)

// sessionContextKey is the context key for the caller's journal session.
type sessionContextKey struct{}

// ErrNoSessionInContext indicates no session was found in the context.
var ErrNoSessionInContext = errors.New("no session in context")

// WithSession returns a new context with the session attached.
func WithSession(ctx context.Context, sess journal.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from the context.
// Returns ErrNoSessionInContext if not present.
func SessionFromContext(ctx context.Context) (journal.Session, error) {
	sess, ok := ctx.Value(sessionContextKey{}).(journal.Session)
	if !ok || sess.OwnerID == "" {
		return journal.Session{}, ErrNoSessionInContext
	}
	return sess, nil
}

// MustSessionFromContext extracts the session or panics.
// Use only when middleware guarantees session presence.
func MustSessionFromContext(ctx context.Context) journal.Session {
	sess, err := SessionFromContext(ctx)
	if err != nil {
		panic("session not in context: middleware misconfiguration")
	}
	return sess
}
