// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the leadership portal.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/repository/memory"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrStoreDown          = errors.New("mock: store unreachable")
)

// MockUserRepository implements domain.UserRepository for testing
type MockUserRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	CreateFunc        func(ctx context.Context, user *domain.User) error
	GetByIDFunc       func(ctx context.Context, id string) (*domain.User, error)
	GetByUsernameFunc func(ctx context.Context, username string) (*domain.User, error)

	// In-memory storage keyed by user ID
	Users map[string]*domain.User
}

// NewMockUserRepository creates a MockUserRepository seeded with users
func NewMockUserRepository(users ...*domain.User) *MockUserRepository {
	m := &MockUserRepository{Users: make(map[string]*domain.User)}
	for _, u := range users {
		m.Users[u.ID] = u
	}
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.Users {
		if u.Username == user.Username {
			return domain.ErrUsernameExists
		}
		if u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}

	if user.ID == "" {
		user.ID = "user-" + user.Username
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// MockSessionStore wraps the in-memory store with per-method overrides and
// call counters.
type MockSessionStore struct {
	*memory.SessionStore

	GetByTokenFunc       func(ctx context.Context, token string) (*domain.Session, error)
	TouchFunc            func(ctx context.Context, token string, lastActivityAt, expiresAt time.Time) (time.Time, error)
	ConsumeCSRFTokenFunc func(ctx context.Context, sessionToken, csrfToken string) (bool, error)
	UpdateCSRFTokenFunc  func(ctx context.Context, sessionToken, csrfToken string, issuedAt time.Time) error

	mu         sync.Mutex
	TouchCalls int
}

// NewMockSessionStore creates a store seeded with sessions
func NewMockSessionStore(sessions ...*domain.Session) *MockSessionStore {
	m := &MockSessionStore{SessionStore: memory.NewSessionStore()}
	for _, s := range sessions {
		_ = m.SessionStore.Create(context.Background(), s)
	}
	return m
}

func (m *MockSessionStore) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	return m.SessionStore.GetByToken(ctx, token)
}

func (m *MockSessionStore) Touch(ctx context.Context, token string, lastActivityAt, expiresAt time.Time) (time.Time, error) {
	m.mu.Lock()
	m.TouchCalls++
	m.mu.Unlock()
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx, token, lastActivityAt, expiresAt)
	}
	return m.SessionStore.Touch(ctx, token, lastActivityAt, expiresAt)
}

func (m *MockSessionStore) ConsumeCSRFToken(ctx context.Context, sessionToken, csrfToken string) (bool, error) {
	if m.ConsumeCSRFTokenFunc != nil {
		return m.ConsumeCSRFTokenFunc(ctx, sessionToken, csrfToken)
	}
	return m.SessionStore.ConsumeCSRFToken(ctx, sessionToken, csrfToken)
}

func (m *MockSessionStore) UpdateCSRFToken(ctx context.Context, sessionToken, csrfToken string, issuedAt time.Time) error {
	if m.UpdateCSRFTokenFunc != nil {
		return m.UpdateCSRFTokenFunc(ctx, sessionToken, csrfToken, issuedAt)
	}
	return m.SessionStore.UpdateCSRFToken(ctx, sessionToken, csrfToken, issuedAt)
}

// Stored returns the persisted copy of a session, or nil
func (m *MockSessionStore) Stored(token string) *domain.Session {
	s, err := m.SessionStore.GetByToken(context.Background(), token)
	if err != nil {
		return nil
	}
	return s
}

// MockAssignmentRepository implements domain.AssignmentRepository and counts
// mutations so tests can prove nothing was written.
type MockAssignmentRepository struct {
	mu sync.RWMutex

	GetByIDFunc func(ctx context.Context, id string) (*domain.Assignment, error)

	Assignments map[string]*domain.Assignment
	Mutations   int
	Deleted     []*domain.AuditEvent
}

func NewMockAssignmentRepository(assignments ...*domain.Assignment) *MockAssignmentRepository {
	m := &MockAssignmentRepository{Assignments: make(map[string]*domain.Assignment)}
	for _, a := range assignments {
		m.Assignments[a.ID] = a
	}
	return m
}

func (m *MockAssignmentRepository) Create(_ context.Context, a *domain.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = nextID("assignment")
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.Status == "" {
		a.Status = domain.AssignmentAssigned
	}
	m.Assignments[a.ID] = a
	m.Mutations++
	return nil
}

func (m *MockAssignmentRepository) GetByID(ctx context.Context, id string) (*domain.Assignment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.Assignments[id]
	if !ok {
		return nil, domain.ErrAssignmentNotFound
	}
	out := *a
	return &out, nil
}

func (m *MockAssignmentRepository) ListForUser(_ context.Context, userID string, limit int) ([]*domain.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Assignment
	for _, a := range m.Assignments {
		if a.AssignedBy == userID || a.AssignedTo == userID {
			out = append(out, a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockAssignmentRepository) Submit(_ context.Context, id, submission string) error {
	return m.transition(id, domain.AssignmentAssigned, func(a *domain.Assignment) {
		a.Status = domain.AssignmentSubmitted
		a.Submission = submission
	})
}

func (m *MockAssignmentRepository) Review(_ context.Context, id, feedback string) error {
	return m.transition(id, domain.AssignmentSubmitted, func(a *domain.Assignment) {
		a.Status = domain.AssignmentReviewed
		a.Feedback = feedback
	})
}

func (m *MockAssignmentRepository) Delete(_ context.Context, id string, audit *domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Assignments[id]; !ok {
		return domain.ErrAssignmentNotFound
	}
	delete(m.Assignments, id)
	m.Deleted = append(m.Deleted, audit)
	m.Mutations++
	return nil
}

// GetResourceOwnership implements access.OwnershipSource
func (m *MockAssignmentRepository) GetResourceOwnership(ctx context.Context, resourceType, id string) (access.Ownership, error) {
	if resourceType != domain.ResourceAssignment {
		return access.Ownership{}, access.ErrResourceNotFound
	}
	a, err := m.GetByID(ctx, id)
	if errors.Is(err, domain.ErrAssignmentNotFound) {
		return access.Ownership{}, access.ErrResourceNotFound
	}
	if err != nil {
		return access.Ownership{}, err
	}
	return access.Ownership{
		ResourceType: resourceType,
		ResourceID:   id,
		Owners: map[access.Relation][]string{
			access.RelationOwner:    {a.AssignedBy},
			access.RelationAssignee: {a.AssignedTo},
		},
	}, nil
}

// MutationCount reports how many writes reached the repository
func (m *MockAssignmentRepository) MutationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Mutations
}

func (m *MockAssignmentRepository) transition(id string, from domain.AssignmentStatus, apply func(*domain.Assignment)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.Assignments[id]
	if !ok {
		return domain.ErrAssignmentNotFound
	}
	if a.Status != from {
		return domain.ErrInvalidTransition
	}
	apply(a)
	a.UpdatedAt = time.Now()
	m.Mutations++
	return nil
}

// RecordingAuditSink captures audit events in memory
type RecordingAuditSink struct {
	mu     sync.Mutex
	Err    error
	Events []*domain.AuditEvent
}

func (r *RecordingAuditSink) Record(_ context.Context, event *domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event)
	return r.Err
}

// Snapshot returns a copy of the recorded events
func (r *RecordingAuditSink) Snapshot() []*domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AuditEvent, len(r.Events))
	copy(out, r.Events)
	return out
}

// RecordingNotifier captures notifications per user
type RecordingNotifier struct {
	mu   sync.Mutex
	Sent map[string][][]byte
}

func (n *RecordingNotifier) Notify(userID string, payload []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Sent == nil {
		n.Sent = make(map[string][][]byte)
	}
	n.Sent[userID] = append(n.Sent[userID], payload)
}

// Count returns how many notifications userID received
func (n *RecordingNotifier) Count(userID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Sent[userID])
}
