package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadership-portal/internal/domain"
	"leadership-portal/internal/observability"
)

// ErrUpstreamLookup is returned when the session or user store cannot be
// reached in time. Callers must treat it as a failed validation.
var ErrUpstreamLookup = errors.New("session lookup unavailable")

const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultLookupTimeout = 2 * time.Second

	maxTokenLength = 256
)

// SessionStatus is the outcome of validating a session token.
type SessionStatus int

const (
	SessionNone SessionStatus = iota
	SessionExpired
	SessionValid
)

func (s SessionStatus) String() string {
	switch s {
	case SessionValid:
		return "valid"
	case SessionExpired:
		return "expired"
	default:
		return "none"
	}
}

// SessionResult carries the validated session and its user when Status is
// SessionValid.
type SessionResult struct {
	Status  SessionStatus
	Session *domain.Session
	User    *domain.User
}

// SessionValidator resolves a session token into an authenticated user and
// slides the session's expiry forward.
type SessionValidator struct {
	sessions      domain.SessionStore
	users         domain.UserRepository
	idleTimeout   time.Duration
	lookupTimeout time.Duration
	now           func() time.Time
}

// ValidatorOption configures a SessionValidator.
type ValidatorOption func(*SessionValidator)

func WithIdleTimeout(d time.Duration) ValidatorOption {
	return func(v *SessionValidator) {
		if d > 0 {
			v.idleTimeout = d
		}
	}
}

func WithLookupTimeout(d time.Duration) ValidatorOption {
	return func(v *SessionValidator) {
		if d > 0 {
			v.lookupTimeout = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *SessionValidator) {
		v.now = now
	}
}

func NewSessionValidator(sessions domain.SessionStore, users domain.UserRepository, opts ...ValidatorOption) *SessionValidator {
	v := &SessionValidator{
		sessions:      sessions,
		users:         users,
		idleTimeout:   DefaultIdleTimeout,
		lookupTimeout: DefaultLookupTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// IdleTimeout is the sliding window applied on each validation.
func (v *SessionValidator) IdleTimeout() time.Duration {
	return v.idleTimeout
}

// Validate looks up token and returns the authenticated user.
//
// Missing, malformed and unknown tokens yield SessionNone, as do sessions
// whose user is gone or inactive. Store failures and timeouts return
// ErrUpstreamLookup.
func (v *SessionValidator) Validate(ctx context.Context, token string) (SessionResult, error) {
	if !wellFormedToken(token) {
		return v.result(SessionResult{Status: SessionNone}), nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.lookupTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		observability.SessionLookupDuration.Observe(time.Since(start).Seconds())
	}()

	session, err := v.sessions.GetByToken(ctx, token)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return v.result(SessionResult{Status: SessionNone}), nil
	case errors.Is(err, domain.ErrSessionExpired):
		return v.result(SessionResult{Status: SessionExpired}), nil
	case err != nil:
		return v.upstream("session", err)
	}

	now := v.now()
	if session.Expired(now) {
		return v.result(SessionResult{Status: SessionExpired}), nil
	}

	user, err := v.users.GetByID(ctx, session.UserID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return v.result(SessionResult{Status: SessionNone}), nil
	case err != nil:
		return v.upstream("user", err)
	}
	if !user.IsActive {
		return v.result(SessionResult{Status: SessionNone}), nil
	}

	expiresAt, err := v.sessions.Touch(ctx, token, now, now.Add(v.idleTimeout))
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		// deleted between lookup and touch, e.g. a concurrent logout
		return v.result(SessionResult{Status: SessionNone}), nil
	case err != nil:
		return v.upstream("touch", err)
	}

	session.LastActivityAt = now
	if expiresAt.After(session.ExpiresAt) {
		session.ExpiresAt = expiresAt
	}

	return v.result(SessionResult{Status: SessionValid, Session: session, User: user}), nil
}

func (v *SessionValidator) result(r SessionResult) SessionResult {
	observability.SessionValidations.WithLabelValues(r.Status.String()).Inc()
	return r
}

func (v *SessionValidator) upstream(stage string, err error) (SessionResult, error) {
	observability.SessionValidations.WithLabelValues("error").Inc()
	return SessionResult{Status: SessionNone}, fmt.Errorf("%w: %s: %v", ErrUpstreamLookup, stage, err)
}

// wellFormedToken rejects empty, oversized and non-printable tokens before
// they reach the store.
func wellFormedToken(token string) bool {
	if token == "" || len(token) > maxTokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < 0x21 || token[i] > 0x7e {
			return false
		}
	}
	return true
}
