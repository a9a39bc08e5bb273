package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrInvalidTransition  = errors.New("assignment is not in a state that allows this action")
)

// AssignmentStatus tracks an assignment through its lifecycle.
type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "assigned"
	AssignmentSubmitted AssignmentStatus = "submitted"
	AssignmentReviewed  AssignmentStatus = "reviewed"
)

// ResourceAssignment is the resource type name used for ownership lookups.
const ResourceAssignment = "assignment"

// Assignment is a piece of work a mentor hands to a participant
type Assignment struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	AssignedBy  string           `json:"assigned_by"`
	AssignedTo  string           `json:"assigned_to"`
	Status      AssignmentStatus `json:"status"`
	Submission  string           `json:"submission,omitempty"`
	Feedback    string           `json:"feedback,omitempty"`
	DueDate     *time.Time       `json:"due_date,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// AssignmentRepository defines the interface for assignment data access
type AssignmentRepository interface {
	Create(ctx context.Context, a *Assignment) error
	GetByID(ctx context.Context, id string) (*Assignment, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*Assignment, error)
	Submit(ctx context.Context, id, submission string) error
	Review(ctx context.Context, id, feedback string) error
	Delete(ctx context.Context, id string, audit *AuditEvent) error
}
