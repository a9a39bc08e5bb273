// Package memory implements an in-process session store for development and
// single-instance deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"leadership-portal/internal/domain"

	"github.com/google/uuid"
)

// SessionStore keeps sessions in a map guarded by a mutex.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

var _ domain.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = session.CreatedAt
	}
	stored := *session
	s.sessions[session.Token] = &stored
	return nil
}

// GetByToken returns a copy so callers cannot mutate stored state.
func (s *SessionStore) GetByToken(_ context.Context, token string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := *session
	return &out, nil
}

func (s *SessionStore) Touch(_ context.Context, token string, lastActivityAt, expiresAt time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return time.Time{}, domain.ErrSessionNotFound
	}
	session.LastActivityAt = lastActivityAt
	if expiresAt.After(session.ExpiresAt) {
		session.ExpiresAt = expiresAt
	}
	return session.ExpiresAt, nil
}

func (s *SessionStore) UpdateCSRFToken(_ context.Context, sessionToken, csrfToken string, issuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionToken]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.CSRFToken = csrfToken
	session.CSRFIssuedAt = issuedAt
	return nil
}

func (s *SessionStore) ConsumeCSRFToken(_ context.Context, sessionToken, csrfToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionToken]
	if !ok || session.CSRFToken == "" || session.CSRFToken != csrfToken {
		return false, nil
	}
	session.CSRFToken = ""
	return true, nil
}

func (s *SessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

func (s *SessionStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	now := s.now()
	for token, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, token)
			count++
		}
	}
	return count, nil
}

// Len reports the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
