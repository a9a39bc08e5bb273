package handler

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"leadership-portal/internal/access"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/service"
	"leadership-portal/internal/testutil"
	ws "leadership-portal/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type recordingDisconnector struct {
	mu     sync.Mutex
	tokens []string
}

func (d *recordingDisconnector) DisconnectSession(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
}

const allowedTestOrigin = "https://portal.example.org"

// apiEnv is the full API router over in-memory fakes
type apiEnv struct {
	fx           *testutil.GateFixture
	notifier     *testutil.RecordingNotifier
	disconnector *recordingDisconnector
	hub          *ws.Hub
	router       chi.Router
}

func newAPIEnv(t *testing.T, policy access.CSRFPolicy, users ...*domain.User) *apiEnv {
	t.Helper()
	fx := testutil.NewGateFixture(policy, users...)
	env := &apiEnv{
		fx:           fx,
		notifier:     &testutil.RecordingNotifier{},
		disconnector: &recordingDisconnector{},
		hub:          ws.NewHub(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.hub.Run(ctx)

	authService := service.NewAuthService(fx.Users, fx.Sessions, fx.Gate, fx.Audit, 0)
	assignmentService := service.NewAssignmentService(fx.Assignments, fx.Users, env.notifier, fx.Audit)

	env.router = chi.NewRouter()
	Routes{
		Gate:          fx.Gate,
		Auth:          NewAuthHandler(authService, fx.Gate, env.disconnector, true),
		Users:         NewUsersHandler(authService),
		Assignments:   NewAssignmentHandler(assignmentService),
		Notifications: NewWebSocketHandler(env.hub, []string{allowedTestOrigin}),
	}.Mount(env.router)
	return env
}

// session logs user in and returns the cookie token and a CSRF token
func (e *apiEnv) session(t *testing.T, user *domain.User) (string, string) {
	t.Helper()
	s := e.fx.Login(user)
	csrf := e.fx.IssueCSRF(s.Token)
	require.NotEmpty(t, csrf)
	return s.Token, csrf
}

// do sends a request through the router. Empty token means anonymous.
func (e *apiEnv) do(t *testing.T, method, path string, body interface{}, token, csrf string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, method, path, body)
	if token != "" {
		testutil.WithSessionCookie(req, token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
