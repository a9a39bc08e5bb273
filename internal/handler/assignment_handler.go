package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/middleware"
	"leadership-portal/internal/observability"
	"leadership-portal/internal/service"

	"github.com/go-chi/chi/v5"
)

// AssignmentHandler serves the assignment workflow. Every route is mounted
// behind the gate, so handlers only see callers that hold the permission
// and, for /{id} routes, the required relation to the assignment.
type AssignmentHandler struct {
	assignments *service.AssignmentService
}

func NewAssignmentHandler(assignments *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// SubmitRequest carries a participant's work
type SubmitRequest struct {
	Submission string `json:"submission"`
}

// ReviewRequest carries a mentor's feedback
type ReviewRequest struct {
	Feedback string `json:"feedback"`
}

// List returns the caller's assignments
func (h *AssignmentHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, access.MsgLoginRequired)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = n
	}

	assignments, err := h.assignments.ListForUser(r.Context(), user, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if assignments == nil {
		assignments = []*domain.Assignment{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assignments": assignments,
	})
}

// Create hands a new assignment to a participant
func (h *AssignmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, access.MsgLoginRequired)
		return
	}

	var req service.CreateAssignmentInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	a, err := h.assignments.Create(r.Context(), user, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, a)
}

// Get returns a single assignment
func (h *AssignmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.assignments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// Submit records the assignee's work
func (h *AssignmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, access.MsgLoginRequired)
		return
	}

	var req SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	a, err := h.assignments.Submit(r.Context(), user, chi.URLParam(r, "id"), req.Submission)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// Review records the mentor's feedback
func (h *AssignmentHandler) Review(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, access.MsgLoginRequired)
		return
	}

	var req ReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	a, err := h.assignments.Review(r.Context(), user, chi.URLParam(r, "id"), req.Feedback)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// Delete removes an assignment
func (h *AssignmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, access.MsgLoginRequired)
		return
	}

	if err := h.assignments.Delete(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AssignmentHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid input")
	case errors.Is(err, domain.ErrAssignmentNotFound):
		writeError(w, http.StatusNotFound, "Assignment not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Assignment is not in a state that allows this action")
	default:
		observability.FromContext(r.Context()).Error("assignment operation failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
