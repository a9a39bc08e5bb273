package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/observability"
)

const (
	maxTitleLength   = 200
	maxTextLength    = 10000
	defaultListLimit = 50
	maxListLimit     = 200
)

// Notifier pushes a payload to every live connection of a user.
type Notifier interface {
	Notify(userID string, payload []byte)
}

// Notification is the payload pushed to clients over the websocket.
type Notification struct {
	Type         string    `json:"type"`
	AssignmentID string    `json:"assignment_id"`
	Title        string    `json:"title"`
	From         string    `json:"from"`
	At           time.Time `json:"at"`
}

const (
	NotifyAssignmentCreated   = "assignment_created"
	NotifyAssignmentSubmitted = "assignment_submitted"
	NotifyAssignmentReviewed  = "assignment_reviewed"
)

// CreateAssignmentInput is what a mentor submits when handing out work.
type CreateAssignmentInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssignedTo  string     `json:"assigned_to"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// AssignmentService runs the assignment workflow. Callers must have passed
// the access gate for the matching permission and ownership first.
type AssignmentService struct {
	repo     domain.AssignmentRepository
	users    domain.UserRepository
	notifier Notifier
	audit    access.AuditSink
}

func NewAssignmentService(repo domain.AssignmentRepository, users domain.UserRepository, notifier Notifier, audit access.AuditSink) *AssignmentService {
	if audit == nil {
		audit = access.NopAuditSink{}
	}
	return &AssignmentService{
		repo:     repo,
		users:    users,
		notifier: notifier,
		audit:    audit,
	}
}

func (s *AssignmentService) Create(ctx context.Context, actor *domain.User, in CreateAssignmentInput) (*domain.Assignment, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || len(title) > maxTitleLength || len(in.Description) > maxTextLength {
		return nil, domain.ErrInvalidInput
	}

	assignee, err := s.users.GetByID(ctx, in.AssignedTo)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidInput
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up assignee: %w", err)
	}
	if !assignee.IsActive || assignee.Role != domain.RoleParticipant {
		return nil, domain.ErrInvalidInput
	}

	a := &domain.Assignment{
		Title:       title,
		Description: in.Description,
		AssignedBy:  actor.ID,
		AssignedTo:  assignee.ID,
		Status:      domain.AssignmentAssigned,
		DueDate:     in.DueDate,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.emit(ctx, actor.ID, domain.AuditAssignmentCreated, a.ID)
	s.notify(ctx, a.AssignedTo, NotifyAssignmentCreated, a, actor)
	return a, nil
}

func (s *AssignmentService) Get(ctx context.Context, id string) (*domain.Assignment, error) {
	return s.repo.GetByID(ctx, id)
}

// ListForUser returns assignments actor created or received.
func (s *AssignmentService) ListForUser(ctx context.Context, actor *domain.User, limit int) ([]*domain.Assignment, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListForUser(ctx, actor.ID, limit)
}

func (s *AssignmentService) Submit(ctx context.Context, actor *domain.User, id, submission string) (*domain.Assignment, error) {
	if strings.TrimSpace(submission) == "" || len(submission) > maxTextLength {
		return nil, domain.ErrInvalidInput
	}
	if err := s.repo.Submit(ctx, id, submission); err != nil {
		return nil, err
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor.ID, domain.AuditAssignmentUpdated, id)
	s.notify(ctx, a.AssignedBy, NotifyAssignmentSubmitted, a, actor)
	return a, nil
}

func (s *AssignmentService) Review(ctx context.Context, actor *domain.User, id, feedback string) (*domain.Assignment, error) {
	if len(feedback) > maxTextLength {
		return nil, domain.ErrInvalidInput
	}
	if err := s.repo.Review(ctx, id, feedback); err != nil {
		return nil, err
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor.ID, domain.AuditAssignmentUpdated, id)
	s.notify(ctx, a.AssignedTo, NotifyAssignmentReviewed, a, actor)
	return a, nil
}

// Delete removes the assignment; the repository stores the audit row in
// the same transaction.
func (s *AssignmentService) Delete(ctx context.Context, actor *domain.User, id string) error {
	event := domain.NewAuditEvent(domain.AuditAssignmentDeleted, actor.ID, "success")
	event.Permission = string(access.PermAssignmentManagement)
	event.ResourceType = domain.ResourceAssignment
	event.ResourceID = id
	return s.repo.Delete(ctx, id, event)
}

func (s *AssignmentService) emit(ctx context.Context, userID, eventType, assignmentID string) {
	event := domain.NewAuditEvent(eventType, userID, "success")
	event.ResourceType = domain.ResourceAssignment
	event.ResourceID = assignmentID
	if err := s.audit.Record(ctx, event); err != nil {
		observability.FromContext(ctx).Error("failed to record audit event",
			slog.String("type", eventType),
			slog.String("error", err.Error()))
	}
}

func (s *AssignmentService) notify(ctx context.Context, userID, kind string, a *domain.Assignment, actor *domain.User) {
	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(Notification{
		Type:         kind,
		AssignmentID: a.ID,
		Title:        a.Title,
		From:         actor.Username,
		At:           time.Now().UTC(),
	})
	if err != nil {
		observability.FromContext(ctx).Error("failed to encode notification", slog.String("error", err.Error()))
		return
	}
	s.notifier.Notify(userID, payload)
}
