package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"leadership-portal/internal/domain"
)

const (
	createSessionSQL = `
		INSERT INTO sessions (user_id, token, csrf_token, csrf_issued_at, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	getSessionByTokenSQL = `
		SELECT id, user_id, token, csrf_token, csrf_issued_at, last_activity_at, expires_at, created_at
		FROM sessions
		WHERE token = $1
	`
	touchSessionSQL = `
		UPDATE sessions
		SET last_activity_at = $2, expires_at = GREATEST(expires_at, $3)
		WHERE token = $1
		RETURNING expires_at
	`
	updateCSRFTokenSQL  = `UPDATE sessions SET csrf_token = $2, csrf_issued_at = $3 WHERE token = $1`
	consumeCSRFTokenSQL = `UPDATE sessions SET csrf_token = '' WHERE token = $1 AND csrf_token = $2 AND csrf_token <> ''`
	deleteSessionSQL    = `DELETE FROM sessions WHERE token = $1`
	deleteExpiredSQL    = `DELETE FROM sessions WHERE expires_at <= $1`
)

// SessionRepository implements domain.SessionStore on PostgreSQL.
// Every statement is prepared once at construction.
type SessionRepository struct {
	db                   *sql.DB
	createStmt           *sql.Stmt
	getByTokenStmt       *sql.Stmt
	touchStmt            *sql.Stmt
	updateCSRFTokenStmt  *sql.Stmt
	consumeCSRFTokenStmt *sql.Stmt
	deleteStmt           *sql.Stmt
	deleteExpiredStmt    *sql.Stmt
}

// NewSessionRepository creates a new SessionRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewSessionRepository(db *sql.DB) (*SessionRepository, error) {
	repo := &SessionRepository{db: db}

	stmts := []struct {
		name  string
		query string
		dst   **sql.Stmt
	}{
		{"create", createSessionSQL, &repo.createStmt},
		{"getByToken", getSessionByTokenSQL, &repo.getByTokenStmt},
		{"touch", touchSessionSQL, &repo.touchStmt},
		{"updateCSRFToken", updateCSRFTokenSQL, &repo.updateCSRFTokenStmt},
		{"consumeCSRFToken", consumeCSRFTokenSQL, &repo.consumeCSRFTokenStmt},
		{"delete", deleteSessionSQL, &repo.deleteStmt},
		{"deleteExpired", deleteExpiredSQL, &repo.deleteExpiredStmt},
	}

	for _, s := range stmts {
		stmt, err := db.Prepare(s.query)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to prepare %s statement: %w", s.name, err)
		}
		*s.dst = stmt
	}

	return repo, nil
}

// Close releases the prepared statements.
func (r *SessionRepository) Close() {
	for _, stmt := range []*sql.Stmt{
		r.createStmt, r.getByTokenStmt, r.touchStmt, r.updateCSRFTokenStmt,
		r.consumeCSRFTokenStmt, r.deleteStmt, r.deleteExpiredStmt,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = time.Now()
	}

	err := r.createStmt.QueryRowContext(ctx,
		session.UserID,
		session.Token,
		session.CSRFToken,
		nullTime(session.CSRFIssuedAt),
		session.LastActivityAt,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByToken returns the session even when it has expired; the caller
// decides what expiry means.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	session := &domain.Session{}
	var csrfIssuedAt sql.NullTime
	err := r.getByTokenStmt.QueryRowContext(ctx, token).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.CSRFToken,
		&csrfIssuedAt,
		&session.LastActivityAt,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by token: %w", err)
	}
	session.CSRFIssuedAt = csrfIssuedAt.Time
	return session, nil
}

// Touch records activity and extends the expiry. GREATEST keeps concurrent
// requests from shortening a session.
func (r *SessionRepository) Touch(ctx context.Context, token string, lastActivityAt, expiresAt time.Time) (time.Time, error) {
	var stored time.Time
	err := r.touchStmt.QueryRowContext(ctx, token, lastActivityAt, expiresAt).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to touch session: %w", err)
	}
	return stored, nil
}

// UpdateCSRFToken replaces the session's CSRF token.
func (r *SessionRepository) UpdateCSRFToken(ctx context.Context, sessionToken, csrfToken string, issuedAt time.Time) error {
	result, err := r.updateCSRFTokenStmt.ExecContext(ctx, sessionToken, csrfToken, issuedAt)
	if err != nil {
		return fmt.Errorf("failed to update csrf token: %w", err)
	}
	return requireRow(result, domain.ErrSessionNotFound)
}

// ConsumeCSRFToken clears the token if it still matches. Only one of several
// concurrent callers sees true.
func (r *SessionRepository) ConsumeCSRFToken(ctx context.Context, sessionToken, csrfToken string) (bool, error) {
	result, err := r.consumeCSRFTokenStmt.ExecContext(ctx, sessionToken, csrfToken)
	if err != nil {
		return false, fmt.Errorf("failed to consume csrf token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.deleteStmt.ExecContext(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.deleteExpiredStmt.ExecContext(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// requireRow maps "no rows affected" onto notFound.
func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
