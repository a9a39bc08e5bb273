package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"leadership-portal/internal/domain"
)

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertAuditSQL = `
		INSERT INTO audit_log (id, event_type, user_id, permission, resource_type, resource_id, outcome, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

// AuditRepository persists audit events to the audit_log table
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert stores event. Re-inserting the same ID is a no-op so redelivered
// queue messages are harmless.
func (r *AuditRepository) Insert(ctx context.Context, event *domain.AuditEvent) error {
	return insertAudit(ctx, r.db, event)
}

// Record implements access.AuditSink for deployments without a broker.
func (r *AuditRepository) Record(ctx context.Context, event *domain.AuditEvent) error {
	return r.Insert(ctx, event)
}

// ListByUser returns the newest events for userID first.
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditEvent, error) {
	query := `
		SELECT id, event_type, user_id, permission, resource_type, resource_id, outcome, reason, created_at
		FROM audit_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		e := &domain.AuditEvent{}
		if err := rows.Scan(
			&e.ID,
			&e.Type,
			&e.UserID,
			&e.Permission,
			&e.ResourceType,
			&e.ResourceID,
			&e.Outcome,
			&e.Reason,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func insertAudit(ctx context.Context, db execer, e *domain.AuditEvent) error {
	_, err := db.ExecContext(ctx, insertAuditSQL,
		e.ID,
		e.Type,
		e.UserID,
		e.Permission,
		e.ResourceType,
		e.ResourceID,
		e.Outcome,
		e.Reason,
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
