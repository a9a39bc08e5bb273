package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session represents an authenticated user session.
// ExpiresAt slides forward on every authenticated request.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Token          string    `json:"token"`
	CSRFToken      string    `json:"csrf_token"`
	CSRFIssuedAt   time.Time `json:"csrf_issued_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore defines the interface for session persistence.
//
// GetByToken returns ErrSessionNotFound for unknown tokens. Expired sessions
// are returned as-is so callers can tell expiry apart from absence.
//
// Touch must never move ExpiresAt backwards: implementations store
// max(current, expiresAt). LastActivityAt is last-writer-wins.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Touch(ctx context.Context, token string, lastActivityAt, expiresAt time.Time) (time.Time, error)
	UpdateCSRFToken(ctx context.Context, sessionToken, csrfToken string, issuedAt time.Time) error
	ConsumeCSRFToken(ctx context.Context, sessionToken, csrfToken string) (bool, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
