package middleware

import (
	"log/slog"
	"net/http"

	"leadership-portal/internal/access"
	"leadership-portal/internal/observability"

	"github.com/go-chi/chi/v5"
)

// ResourceFunc extracts the resource instance a request targets.
type ResourceFunc func(r *http.Request) *access.ResourceRef

// URLParamResource scopes a route to the resource whose ID is in the named
// chi URL parameter.
func URLParamResource(resourceType, param string, override access.Permission, relations ...access.Relation) ResourceFunc {
	return func(r *http.Request) *access.ResourceRef {
		return &access.ResourceRef{
			Type:      resourceType,
			ID:        chi.URLParam(r, param),
			Relations: relations,
			Override:  override,
		}
	}
}

// Require runs the permission, ownership and CSRF steps of the gate for an
// authenticated request. Mount it after Authenticate. resource may be nil
// for routes that are not scoped to one instance.
func Require(gate *access.Gate, perm access.Permission, resource ResourceFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r.Context())
			if !ok {
				unauthenticated(w, r)
				return
			}

			req := access.Request{
				SessionToken: principal.Session.Token,
				Permission:   perm,
				Mutating:     !isSafeMethod(r.Method),
			}
			if req.Mutating {
				req.CSRFToken = extractCSRFToken(r)
			}
			if resource != nil {
				req.Resource = resource(r)
			}

			decision, err := gate.Check(r.Context(), principal, req)
			if err != nil {
				observability.FromContext(r.Context()).Error("authorization lookup failed",
					slog.String("permission", string(perm)),
					slog.String("error", err.Error()))
				writeError(w, http.StatusServiceUnavailable, access.MsgUnavailable)
				return
			}
			if !decision.Allowed() {
				writeDenial(w, r, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeDenial(w http.ResponseWriter, r *http.Request, d access.Decision) {
	switch d.Outcome {
	case access.DeniedUnauthenticated:
		unauthenticated(w, r)
	case access.DeniedCSRF:
		var userID string
		if d.User != nil {
			userID = d.User.ID
		}
		logCSRFFailure(r, userID, "token mismatch")
		writeError(w, http.StatusForbidden, d.Reason)
	default:
		writeError(w, http.StatusForbidden, d.Reason)
	}
}
