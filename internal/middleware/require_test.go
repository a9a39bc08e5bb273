package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAssignmentRouter mounts a guarded delete and read route the way the
// server does.
func newAssignmentRouter(gate *access.Gate, hits *int) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		w.WriteHeader(http.StatusNoContent)
	})
	owner := URLParamResource(domain.ResourceAssignment, "id", access.PermUserManagement, access.RelationOwner)
	either := URLParamResource(domain.ResourceAssignment, "id", access.PermUserManagement)

	r := chi.NewRouter()
	r.Use(Authenticate(gate))
	r.With(Require(gate, access.PermAssignmentView, either)).Get("/assignments/{id}", ok)
	r.With(Require(gate, access.PermAssignmentManagement, owner)).Delete("/assignments/{id}", ok)
	r.With(Require(gate, access.PermAssignmentManagement, nil)).Post("/assignments", ok)
	return r
}

type requireEnv struct {
	fx         *testutil.GateFixture
	mentor     *domain.User
	other      *domain.User
	student    *domain.User
	assignment *domain.Assignment
	router     http.Handler
	hits       int
}

func newRequireEnv(t *testing.T) *requireEnv {
	t.Helper()
	env := &requireEnv{
		mentor:  testutil.NewTestUser(testutil.WithRole(domain.RoleMentor)),
		other:   testutil.NewTestUser(testutil.WithRole(domain.RoleMentor)),
		student: testutil.NewTestUser(testutil.WithRole(domain.RoleParticipant)),
	}
	env.fx = testutil.NewGateFixture(access.CSRFReusable, env.mentor, env.other, env.student)
	env.assignment = testutil.NewTestAssignment(env.mentor.ID, env.student.ID)
	require.NoError(t, env.fx.Assignments.Create(context.Background(), env.assignment))
	env.fx.Assignments.Mutations = 0
	env.router = newAssignmentRouter(env.fx.Gate, &env.hits)
	return env
}

func (e *requireEnv) do(method, path, token, csrf string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	testutil.WithSessionCookie(req, token)
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRequire_Allowed(t *testing.T) {
	env := newRequireEnv(t)
	session := env.fx.Login(env.mentor)
	csrf := env.fx.IssueCSRF(session.Token)

	w := env.do(http.MethodDelete, "/assignments/"+env.assignment.ID, session.Token, csrf)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, env.hits)
}

func TestRequire_RoleDenied(t *testing.T) {
	env := newRequireEnv(t)
	session := env.fx.Login(env.student)
	csrf := env.fx.IssueCSRF(session.Token)

	w := env.do(http.MethodPost, "/assignments", session.Token, csrf)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, env.hits)
	body := testutil.DecodeJSON[map[string]string](t, w)
	assert.Equal(t, access.MsgAccessDenied, body["error"])
}

func TestRequire_OwnershipDenied(t *testing.T) {
	env := newRequireEnv(t)
	session := env.fx.Login(env.other)
	csrf := env.fx.IssueCSRF(session.Token)

	w := env.do(http.MethodDelete, "/assignments/"+env.assignment.ID, session.Token, csrf)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, env.hits)
	assert.Equal(t, 0, env.fx.Assignments.MutationCount())
	body := testutil.DecodeJSON[map[string]string](t, w)
	assert.Equal(t, access.MsgNotOwner, body["error"])
}

func TestRequire_MissingResourceLooksLikeOwnershipDenial(t *testing.T) {
	env := newRequireEnv(t)
	session := env.fx.Login(env.other)

	missing := env.do(http.MethodGet, "/assignments/does-not-exist", session.Token, "")
	foreign := env.do(http.MethodGet, "/assignments/"+env.assignment.ID, session.Token, "")

	assert.Equal(t, http.StatusForbidden, missing.Code)
	assert.Equal(t, foreign.Code, missing.Code)
	assert.Equal(t, foreign.Body.String(), missing.Body.String())
}

func TestRequire_AssigneeCanReadButNotDelete(t *testing.T) {
	env := newRequireEnv(t)
	session := env.fx.Login(env.student)

	w := env.do(http.MethodGet, "/assignments/"+env.assignment.ID, session.Token, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	csrf := env.fx.IssueCSRF(session.Token)
	w = env.do(http.MethodDelete, "/assignments/"+env.assignment.ID, session.Token, csrf)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, env.hits)
}

func TestRequire_CSRF(t *testing.T) {
	env := newRequireEnv(t)
	session := env.fx.Login(env.mentor)
	valid := env.fx.IssueCSRF(session.Token)

	tests := []struct {
		name string
		csrf string
	}{
		{"missing", ""},
		{"wrong", "not-the-token"},
		{"prefix", valid[:len(valid)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodDelete, "/assignments/"+env.assignment.ID, session.Token, tt.csrf)

			assert.Equal(t, http.StatusForbidden, w.Code)
			body := testutil.DecodeJSON[map[string]string](t, w)
			assert.Equal(t, access.MsgCSRFMismatch, body["error"])
		})
	}

	assert.Equal(t, 0, env.hits)
	assert.Equal(t, 0, env.fx.Assignments.MutationCount())
	assert.Equal(t, valid, env.fx.Sessions.Stored(session.Token).CSRFToken, "failed attempts leave the token in place")
}

func TestRequire_CSRFFromFormField(t *testing.T) {
	env := newRequireEnv(t)
	session := env.fx.Login(env.mentor)
	csrf := env.fx.IssueCSRF(session.Token)

	req := httptest.NewRequest(http.MethodPost, "/assignments", strings.NewReader("csrf_token="+csrf))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	testutil.WithSessionCookie(req, session.Token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequire_ReadsSkipCSRF(t *testing.T) {
	env := newRequireEnv(t)
	session := env.fx.Login(env.mentor)

	w := env.do(http.MethodGet, "/assignments/"+env.assignment.ID, session.Token, "")

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequire_OwnershipLookupFailure(t *testing.T) {
	env := newRequireEnv(t)
	session := env.fx.Login(env.mentor)
	env.fx.Assignments.GetByIDFunc = func(ctx context.Context, id string) (*domain.Assignment, error) {
		return nil, errors.New("connection reset")
	}

	w := env.do(http.MethodGet, "/assignments/"+env.assignment.ID, session.Token, "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 0, env.hits)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestRequire_WithoutPrincipal(t *testing.T) {
	fx := testutil.NewGateFixture(access.CSRFReusable)
	handler := Require(fx.Gate, access.PermAssignmentView, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assignments", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
