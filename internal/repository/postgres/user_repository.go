package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"leadership-portal/internal/domain"
)

const (
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"
)

// UserRepository implements domain.UserRepository for PostgreSQL
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if IsUniqueViolation(err, usernameConstraint) {
			return domain.ErrUsernameExists
		}
		if IsUniqueViolation(err, emailConstraint) {
			return domain.ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, username, email, password_hash, role, is_active, created_at
		FROM users
		WHERE id = $1
	`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if IsInvalidText(err) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, username, email, password_hash, role, is_active, created_at
		FROM users
		WHERE username = $1
	`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	var role string
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.IsActive,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Role = domain.Role(role)
	return user, nil
}
