package domain

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Audit event types
const (
	AuditAccessDenied      = "access_denied"
	AuditAssignmentCreated = "assignment_created"
	AuditAssignmentDeleted = "assignment_deleted"
	AuditAssignmentUpdated = "assignment_updated"
	AuditLogin             = "login"
	AuditLogout            = "logout"
)

// AuditEvent records a security-relevant action or denial.
type AuditEvent struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	UserID       string    `json:"user_id,omitempty"`
	Permission   string    `json:"permission,omitempty"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Outcome      string    `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewAuditEvent stamps a new event with a sortable ID and the current time.
func NewAuditEvent(eventType, userID, outcome string) *AuditEvent {
	now := time.Now().UTC()
	return &AuditEvent{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Type:      eventType,
		UserID:    userID,
		Outcome:   outcome,
		Timestamp: now,
	}
}

// AuditRepository persists audit events
type AuditRepository interface {
	Insert(ctx context.Context, event *AuditEvent) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*AuditEvent, error)
}
