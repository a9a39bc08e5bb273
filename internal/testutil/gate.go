package testutil

import (
	"context"
	"time"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/security"
)

// GateFixture bundles a real gate with the fakes behind it
type GateFixture struct {
	Gate        *access.Gate
	Sessions    *MockSessionStore
	Users       *MockUserRepository
	Assignments *MockAssignmentRepository
	Audit       *RecordingAuditSink
}

// NewGateFixture builds a gate over in-memory fakes with the default role
// matrix and a reusable CSRF policy unless policy says otherwise
func NewGateFixture(policy access.CSRFPolicy, users ...*domain.User) *GateFixture {
	f := &GateFixture{
		Sessions:    NewMockSessionStore(),
		Users:       NewMockUserRepository(users...),
		Assignments: NewMockAssignmentRepository(),
		Audit:       &RecordingAuditSink{},
	}
	validator := access.NewSessionValidator(f.Sessions, f.Users, access.WithLookupTimeout(100*time.Millisecond))
	csrf := access.NewCSRFValidator(f.Sessions, security.NewTokenManager(), policy, 0)
	f.Gate = access.NewGate(validator, access.DefaultResolver(), csrf,
		access.WithOwnershipSource(domain.ResourceAssignment, f.Assignments),
		access.WithAuditSink(f.Audit),
	)
	return f
}

// Login stores a live session for user and returns it
func (f *GateFixture) Login(user *domain.User, opts ...func(*SessionOptions)) *domain.Session {
	opts = append([]func(*SessionOptions){WithSessionUserID(user.ID)}, opts...)
	session := NewTestSession(opts...)
	_ = f.Sessions.SessionStore.Create(context.Background(), session)
	return session
}

// IssueCSRF rotates the stored session's CSRF token and returns it
func (f *GateFixture) IssueCSRF(token string) string {
	session := f.Sessions.Stored(token)
	if session == nil {
		return ""
	}
	csrf, err := f.Gate.IssueCSRFToken(context.Background(), session)
	if err != nil {
		return ""
	}
	return csrf
}
