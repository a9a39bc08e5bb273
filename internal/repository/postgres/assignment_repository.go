package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
)

// AssignmentRepository implements domain.AssignmentRepository and
// access.OwnershipSource for PostgreSQL
type AssignmentRepository struct {
	db *sql.DB
	tx *TxManager
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db, tx: NewTxManager(db)}
}

const assignmentColumns = `id, title, description, assigned_by, assigned_to, status, submission, feedback, due_date, created_at, updated_at`

func (r *AssignmentRepository) Create(ctx context.Context, a *domain.Assignment) error {
	if a.Status == "" {
		a.Status = domain.AssignmentAssigned
	}
	query := `
		INSERT INTO assignments (title, description, assigned_by, assigned_to, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.Title,
		a.Description,
		a.AssignedBy,
		a.AssignedTo,
		string(a.Status),
		a.DueDate,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`

	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) || IsInvalidText(err) {
		return nil, domain.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// ListForUser returns assignments the user created or received, newest first.
func (r *AssignmentRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE assigned_by = $1 OR assigned_to = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Submit moves an assignment from assigned to submitted.
func (r *AssignmentRepository) Submit(ctx context.Context, id, submission string) error {
	query := `
		UPDATE assignments
		SET status = 'submitted', submission = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'assigned'
	`
	return r.transition(ctx, query, id, submission)
}

// Review moves an assignment from submitted to reviewed.
func (r *AssignmentRepository) Review(ctx context.Context, id, feedback string) error {
	query := `
		UPDATE assignments
		SET status = 'reviewed', feedback = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'submitted'
	`
	return r.transition(ctx, query, id, feedback)
}

// Delete removes the assignment and writes audit in the same transaction.
func (r *AssignmentRepository) Delete(ctx context.Context, id string, audit *domain.AuditEvent) error {
	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id)
		if IsInvalidText(err) {
			return domain.ErrAssignmentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to delete assignment: %w", err)
		}
		if err := requireRow(result, domain.ErrAssignmentNotFound); err != nil {
			return err
		}
		if audit == nil {
			return nil
		}
		return insertAudit(ctx, tx, audit)
	})
}

// GetResourceOwnership implements access.OwnershipSource.
func (r *AssignmentRepository) GetResourceOwnership(ctx context.Context, resourceType, id string) (access.Ownership, error) {
	if resourceType != domain.ResourceAssignment {
		return access.Ownership{}, access.ErrResourceNotFound
	}

	var assignedBy, assignedTo string
	err := r.db.QueryRowContext(ctx,
		`SELECT assigned_by, assigned_to FROM assignments WHERE id = $1`, id,
	).Scan(&assignedBy, &assignedTo)
	if errors.Is(err, sql.ErrNoRows) || IsInvalidText(err) {
		return access.Ownership{}, access.ErrResourceNotFound
	}
	if err != nil {
		return access.Ownership{}, fmt.Errorf("failed to get assignment ownership: %w", err)
	}

	return access.Ownership{
		ResourceType: resourceType,
		ResourceID:   id,
		Owners: map[access.Relation][]string{
			access.RelationOwner:    {assignedBy},
			access.RelationAssignee: {assignedTo},
		},
	}, nil
}

// transition runs a guarded status update. When nothing matched it tells a
// missing assignment apart from one in the wrong state.
func (r *AssignmentRepository) transition(ctx context.Context, query, id, text string) error {
	result, err := r.db.ExecContext(ctx, query, id, text)
	if IsInvalidText(err) {
		return domain.ErrAssignmentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM assignments WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check assignment: %w", err)
	}
	if !exists {
		return domain.ErrAssignmentNotFound
	}
	return domain.ErrInvalidTransition
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*domain.Assignment, error) {
	a := &domain.Assignment{}
	var status string
	var dueDate sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&a.AssignedBy,
		&a.AssignedTo,
		&status,
		&a.Submission,
		&a.Feedback,
		&dueDate,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.AssignmentStatus(status)
	if dueDate.Valid {
		a.DueDate = &dueDate.Time
	}
	return a, nil
}
