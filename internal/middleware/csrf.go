package middleware

import (
	"log/slog"
	"net/http"

	"leadership-portal/internal/access"
	"leadership-portal/internal/observability"
)

// CSRF validates the synchronizer token on state-changing requests that need
// a session but no particular permission, such as logout. Routes guarded by
// Require get the same check from the gate.
//
// Token sources (checked in order):
// - Form field: csrf_token
// - Header: X-CSRF-Token
// - Header: X-XSRF-Token (alternate)
func CSRF(gate *access.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			session, ok := GetSession(r.Context())
			if !ok {
				unauthenticated(w, r)
				return
			}

			submittedToken := extractCSRFToken(r)
			if submittedToken == "" {
				logCSRFFailure(r, session.UserID, "missing token")
				observability.CSRFFailures.Inc()
				writeError(w, http.StatusForbidden, access.MsgCSRFMismatch)
				return
			}

			valid, err := gate.ValidateCSRFToken(r.Context(), session, submittedToken)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, access.MsgUnavailable)
				return
			}
			if !valid {
				logCSRFFailure(r, session.UserID, "invalid token")
				observability.CSRFFailures.Inc()
				writeError(w, http.StatusForbidden, access.MsgCSRFMismatch)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod returns true if the HTTP method is idempotent and cacheable.
// These methods should not modify state and don't require CSRF tokens.
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// extractCSRFToken checks the form field first, then the X-CSRF-Token and
// X-XSRF-Token headers.
func extractCSRFToken(r *http.Request) string {
	if token := r.FormValue("csrf_token"); token != "" {
		return token
	}
	if token := r.Header.Get("X-CSRF-Token"); token != "" {
		return token
	}
	return r.Header.Get("X-XSRF-Token")
}

// logCSRFFailure logs a security event when CSRF validation fails. The
// user ID is added only when the request logger does not already carry it.
func logCSRFFailure(r *http.Request, userID, reason string) {
	attrs := make([]any, 0, 5)
	if _, ok := observability.UserID(r.Context()); !ok {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	attrs = append(attrs,
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.RequestURI),
		slog.String("remote_addr", r.RemoteAddr),
	)
	observability.FromContext(r.Context()).Warn("CSRF validation failed", attrs...)
}
