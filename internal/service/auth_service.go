package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/observability"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// compared against when the username is unknown so both failure paths
	// cost one bcrypt comparison
	dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
)

type AuthService struct {
	users       domain.UserRepository
	sessions    domain.SessionStore
	gate        *access.Gate
	audit       access.AuditSink
	idleTimeout time.Duration
}

func NewAuthService(users domain.UserRepository, sessions domain.SessionStore, gate *access.Gate, audit access.AuditSink, idleTimeout time.Duration) *AuthService {
	if audit == nil {
		audit = access.NopAuditSink{}
	}
	if idleTimeout <= 0 {
		idleTimeout = access.DefaultIdleTimeout
	}
	return &AuthService{
		users:       users,
		sessions:    sessions,
		gate:        gate,
		audit:       audit,
		idleTimeout: idleTimeout,
	}
}

// CreateUser registers a new member with the given role.
func (s *AuthService) CreateUser(ctx context.Context, username, email, password string, role domain.Role) (*domain.User, error) {
	if len(username) < 3 || len(username) > 50 || !usernameRegex.MatchString(username) {
		return nil, domain.ErrInvalidInput
	}
	if len(email) > 255 || !emailRegex.MatchString(email) {
		return nil, domain.ErrInvalidInput
	}
	if len(password) < 8 || len(password) > 72 {
		return nil, domain.ErrInvalidInput
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidInput
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials and opens a session with a fresh CSRF token.
// Unknown users, wrong passwords and deactivated accounts all return
// ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Session, *domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.recordLogin(ctx, "", "unknown_user")
		return nil, nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordLogin(ctx, user.ID, "bad_password")
		return nil, nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		s.recordLogin(ctx, user.ID, "inactive")
		return nil, nil, domain.ErrInvalidCredentials
	}

	now := time.Now()
	session := &domain.Session{
		UserID:         user.ID,
		Token:          uuid.New().String(),
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.idleTimeout),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	if _, err := s.gate.IssueCSRFToken(ctx, session); err != nil {
		// a session without a CSRF token cannot make state-changing requests
		if delErr := s.sessions.Delete(context.WithoutCancel(ctx), session.Token); delErr != nil {
			observability.FromContext(ctx).Error("failed to discard session after csrf failure",
				slog.String("user_id", user.ID),
				slog.String("error", delErr.Error()))
		}
		return nil, nil, err
	}

	s.recordLogin(ctx, user.ID, "")
	return session, user, nil
}

// Logout ends the session. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, session *domain.Session) error {
	if err := s.sessions.Delete(ctx, session.Token); err != nil {
		return err
	}
	s.emit(ctx, domain.NewAuditEvent(domain.AuditLogout, session.UserID, "success"))
	return nil
}

func (s *AuthService) recordLogin(ctx context.Context, userID, failure string) {
	outcome := "success"
	if failure != "" {
		outcome = "failure"
	}
	event := domain.NewAuditEvent(domain.AuditLogin, userID, outcome)
	event.Reason = failure
	s.emit(ctx, event)
}

func (s *AuthService) emit(ctx context.Context, event *domain.AuditEvent) {
	if err := s.audit.Record(ctx, event); err != nil {
		observability.FromContext(ctx).Error("failed to record audit event",
			slog.String("type", event.Type),
			slog.String("error", err.Error()))
	}
}
