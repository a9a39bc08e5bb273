package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"leadership-portal/internal/domain"
	"leadership-portal/internal/observability"
	"leadership-portal/internal/service"
)

// UsersHandler provisions portal accounts
type UsersHandler struct {
	authService *service.AuthService
}

func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{authService: authService}
}

// CreateUserRequest represents an account provisioning request
type CreateUserRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// Create handles account provisioning
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.authService.CreateUser(r.Context(), req.Username, req.Email, req.Password, req.Role)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, newUserResponse(user))
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid input")
	case errors.Is(err, domain.ErrUsernameExists):
		writeError(w, http.StatusConflict, "Username already exists")
	case errors.Is(err, domain.ErrEmailExists):
		writeError(w, http.StatusConflict, "Email already exists")
	default:
		observability.FromContext(r.Context()).Error("failed to create user", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to create user")
	}
}
