package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/observability"
)

type contextKey string

const principalKey contextKey = "principal"

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session_id"

// LoginPath is where browsers are sent when they have no valid session.
const LoginPath = "/login"

// Authenticate validates the session cookie through the gate and stores the
// resulting principal in the request context. It runs once per request;
// later checks read the principal instead of hitting the store again.
func Authenticate(gate *access.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				token = cookie.Value
			}

			principal, decision, err := gate.Authenticate(r.Context(), token)
			if err != nil {
				observability.FromContext(r.Context()).Error("session lookup failed",
					"path", r.URL.Path, "error", err.Error())
				writeError(w, http.StatusServiceUnavailable, access.MsgUnavailable)
				return
			}
			if !decision.Allowed() {
				unauthenticated(w, r)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = observability.WithUser(ctx, principal.User.ID, string(principal.User.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// unauthenticated redirects browsers to the login page and answers API
// clients with 401.
func unauthenticated(w http.ResponseWriter, r *http.Request) {
	if wantsHTML(r) {
		target := LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	writeError(w, http.StatusUnauthorized, access.MsgLoginRequired)
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func WithPrincipal(ctx context.Context, p access.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func GetPrincipal(ctx context.Context) (access.Principal, bool) {
	p, ok := ctx.Value(principalKey).(access.Principal)
	if !ok || p.User == nil || p.Session == nil {
		return access.Principal{}, false
	}
	return p, true
}

func GetUser(ctx context.Context) (*domain.User, bool) {
	p, ok := GetPrincipal(ctx)
	return p.User, ok
}

func GetSession(ctx context.Context) (*domain.Session, bool) {
	p, ok := GetPrincipal(ctx)
	return p.Session, ok
}

func GetUserID(ctx context.Context) (string, bool) {
	user, ok := GetUser(ctx)
	if !ok {
		return "", false
	}
	return user.ID, true
}
