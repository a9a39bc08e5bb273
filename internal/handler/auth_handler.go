package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/middleware"
	"leadership-portal/internal/observability"
	"leadership-portal/internal/service"
)

// SessionDisconnector closes live connections opened under a session.
type SessionDisconnector interface {
	DisconnectSession(sessionToken string)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService   *service.AuthService
	gate          *access.Gate
	disconnector  SessionDisconnector
	secureCookies bool
}

// NewAuthHandler creates a new authentication handler. disconnector may be
// nil when no realtime connections exist.
func NewAuthHandler(authService *service.AuthService, gate *access.Gate, disconnector SessionDisconnector, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		gate:          gate,
		disconnector:  disconnector,
		secureCookies: secureCookies,
	}
}

// LoginRequest represents login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse is the public view of a user
type UserResponse struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// LoginResponse represents login response
type LoginResponse struct {
	User      UserResponse `json:"user"`
	CSRFToken string       `json:"csrf_token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// MeResponse describes the caller and what they may do
type MeResponse struct {
	User        UserResponse        `json:"user"`
	Permissions []access.Permission `json:"permissions"`
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, user, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, domain.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).Error("login failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, access.MsgUnavailable)
		return
	}

	// No Max-Age: the server-side idle timeout decides when the session ends.
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, LoginResponse{
		User:      newUserResponse(user),
		CSRFToken: session.CSRFToken,
		ExpiresAt: session.ExpiresAt,
	})
}

// Logout handles user logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, access.MsgLoginRequired)
		return
	}

	if err := h.authService.Logout(r.Context(), session); err != nil {
		observability.FromContext(r.Context()).Error("logout failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, access.MsgUnavailable)
		return
	}
	if h.disconnector != nil {
		h.disconnector.DisconnectSession(session.Token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the current user and their permissions
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, access.MsgLoginRequired)
		return
	}

	perms := h.gate.Resolver().PermissionsFor(user.Role)
	if perms == nil {
		perms = []access.Permission{}
	}
	writeJSON(w, http.StatusOK, MeResponse{
		User:        newUserResponse(user),
		Permissions: perms,
	})
}

// CSRFToken rotates the session's CSRF token and returns the new value
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, access.MsgLoginRequired)
		return
	}

	token, err := h.gate.IssueCSRFToken(r.Context(), session)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to issue csrf token", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, access.MsgUnavailable)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}
