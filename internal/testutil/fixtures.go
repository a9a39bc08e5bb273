package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"leadership-portal/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         domain.Role
	IsActive     bool
}

// NewTestUser creates an active participant unless options say otherwise
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{
		ID:           nextID("user"),
		Username:     fmt.Sprintf("testuser%d", idCounter.Load()),
		PasswordHash: "$2a$10$test.hash.for.testing.purposes.only",
		Role:         domain.RoleParticipant,
		IsActive:     true,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Email == "" {
		o.Email = o.Username + "@example.com"
	}

	return &domain.User{
		ID:           o.ID,
		Username:     o.Username,
		Email:        o.Email,
		PasswordHash: o.PasswordHash,
		Role:         o.Role,
		IsActive:     o.IsActive,
		CreatedAt:    time.Now(),
	}
}

func WithUserID(id string) func(*UserOptions) {
	return func(o *UserOptions) { o.ID = id }
}

func WithUsername(username string) func(*UserOptions) {
	return func(o *UserOptions) { o.Username = username }
}

func WithPasswordHash(hash string) func(*UserOptions) {
	return func(o *UserOptions) { o.PasswordHash = hash }
}

func WithRole(role domain.Role) func(*UserOptions) {
	return func(o *UserOptions) { o.Role = role }
}

// WithInactive marks the user as deactivated
func WithInactive() func(*UserOptions) {
	return func(o *UserOptions) { o.IsActive = false }
}

// SessionOptions allows customizing session fixture creation
type SessionOptions struct {
	ID           string
	UserID       string
	Token        string
	CSRFToken    string
	CSRFIssuedAt time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// NewTestSession creates a session valid for the next 30 minutes
func NewTestSession(opts ...func(*SessionOptions)) *domain.Session {
	now := time.Now()
	o := &SessionOptions{
		ID:        nextID("session"),
		UserID:    nextID("user"),
		Token:     nextID("token"),
		ExpiresAt: now.Add(30 * time.Minute),
		CreatedAt: now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return &domain.Session{
		ID:             o.ID,
		UserID:         o.UserID,
		Token:          o.Token,
		CSRFToken:      o.CSRFToken,
		CSRFIssuedAt:   o.CSRFIssuedAt,
		LastActivityAt: o.CreatedAt,
		ExpiresAt:      o.ExpiresAt,
		CreatedAt:      o.CreatedAt,
	}
}

func WithToken(token string) func(*SessionOptions) {
	return func(o *SessionOptions) { o.Token = token }
}

func WithSessionUserID(userID string) func(*SessionOptions) {
	return func(o *SessionOptions) { o.UserID = userID }
}

func WithExpiresAt(t time.Time) func(*SessionOptions) {
	return func(o *SessionOptions) { o.ExpiresAt = t }
}

// WithExpired sets the session to have expired an hour ago
func WithExpired() func(*SessionOptions) {
	return func(o *SessionOptions) { o.ExpiresAt = time.Now().Add(-time.Hour) }
}

// WithCSRFToken binds a CSRF token issued now
func WithCSRFToken(token string) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.CSRFToken = token
		o.CSRFIssuedAt = time.Now()
	}
}

// NewTestAssignment creates an assignment from assignedBy to assignedTo
func NewTestAssignment(assignedBy, assignedTo string) *domain.Assignment {
	now := time.Now()
	return &domain.Assignment{
		ID:          nextID("assignment"),
		Title:       "Leadership reflection",
		Description: "Write one page on a leader you admire",
		AssignedBy:  assignedBy,
		AssignedTo:  assignedTo,
		Status:      domain.AssignmentAssigned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
