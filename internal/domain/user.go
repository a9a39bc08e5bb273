package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Role is the program role a user holds.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleMentor      Role = "mentor"
	RoleParticipant Role = "participant"
	RoleVolunteer   Role = "volunteer"
)

// Roles returns every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleMentor, RoleParticipant, RoleVolunteer}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMentor, RoleParticipant, RoleVolunteer:
		return true
	}
	return false
}

// User represents a program member
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}
