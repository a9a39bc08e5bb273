package handler

import (
	"net/http"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// Routes binds every gated endpoint to its permission and ownership rule.
// Keeping the table here means the server and the handler tests exercise
// the same wiring.
type Routes struct {
	Gate          *access.Gate
	Auth          *AuthHandler
	Users         *UsersHandler
	Assignments   *AssignmentHandler
	Notifications *WebSocketHandler

	// Optional per-client limiters
	LoginLimiter func(http.Handler) http.Handler
	APILimiter   func(http.Handler) http.Handler
}

// Mount registers /api/v1 and /ws/notifications on r.
func (rt Routes) Mount(r chi.Router) {
	r.Mount("/api/v1", rt.API())

	if rt.Notifications != nil {
		r.With(
			middleware.Authenticate(rt.Gate),
			middleware.Require(rt.Gate, access.PermNotificationView, nil),
		).Get("/ws/notifications", rt.Notifications.HandleConnection)
	}
}

// API returns the JSON API router, to be mounted at /api/v1.
func (rt Routes) API() chi.Router {
	r := chi.NewRouter()
	gate := rt.Gate

	r.Group(func(r chi.Router) {
		if rt.LoginLimiter != nil {
			r.Use(rt.LoginLimiter)
		}
		r.Post("/auth/login", rt.Auth.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(gate))
		if rt.APILimiter != nil {
			r.Use(rt.APILimiter)
		}

		r.Get("/auth/me", rt.Auth.Me)
		r.Get("/auth/csrf", rt.Auth.CSRFToken)
		r.With(middleware.CSRF(gate)).Post("/auth/logout", rt.Auth.Logout)

		r.With(middleware.Require(gate, access.PermUserManagement, nil)).
			Post("/users", rt.Users.Create)

		r.Route("/assignments", func(r chi.Router) {
			r.With(middleware.Require(gate, access.PermAssignmentView, nil)).
				Get("/", rt.Assignments.List)
			r.With(middleware.Require(gate, access.PermAssignmentManagement, nil)).
				Post("/", rt.Assignments.Create)

			// Admins reach any assignment through the user_management override.
			anyParty := assignmentResource()
			creator := assignmentResource(access.RelationOwner)
			assignee := assignmentResource(access.RelationAssignee)

			r.Route("/{id}", func(r chi.Router) {
				r.With(middleware.Require(gate, access.PermAssignmentView, anyParty)).
					Get("/", rt.Assignments.Get)
				r.With(middleware.Require(gate, access.PermAssignmentManagement, creator)).
					Delete("/", rt.Assignments.Delete)
				r.With(middleware.Require(gate, access.PermAssignmentSubmit, assignee)).
					Post("/submit", rt.Assignments.Submit)
				r.With(middleware.Require(gate, access.PermAssignmentManagement, creator)).
					Post("/review", rt.Assignments.Review)
			})
		})
	})

	return r
}

func assignmentResource(relations ...access.Relation) middleware.ResourceFunc {
	return middleware.URLParamResource(domain.ResourceAssignment, "id", access.PermUserManagement, relations...)
}
