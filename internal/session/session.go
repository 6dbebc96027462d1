// Package session carries the authenticated buyer through a request.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Session identifies the signed-in buyer. It is created per request from the
// bearer token and passed explicitly to the checkout operations.
type Session struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

func (s Session) IsZero() bool {
	return s.UserID == ""
}

// Verifier turns a bearer token into a Session.
type Verifier interface {
	Verify(ctx context.Context, token string) (Session, error)
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	if !ok || s.IsZero() {
		return Session{}, false
	}
	return s, true
}
