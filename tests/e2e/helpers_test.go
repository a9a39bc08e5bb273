//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var nameSeq atomic.Int64

// uniqueName returns a username that no other test in the run uses
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%1_000_000, nameSeq.Add(1))
}

// TestClient wraps http.Client with cookie handling for a single user session
type TestClient struct {
	*http.Client
	t         *testing.T
	csrfToken string
	UserID    string
	Username  string
}

// NewTestClient creates a new test client with cookie jar
func NewTestClient(t *testing.T) *TestClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err, "failed to create cookie jar")

	return &TestClient{
		Client: &http.Client{Timeout: 30 * time.Second, Jar: jar},
		t:      t,
	}
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type loginResponse struct {
	User      userResponse `json:"user"`
	CSRFToken string       `json:"csrf_token"`
}

type assignmentResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	AssignedBy string `json:"assigned_by"`
	AssignedTo string `json:"assigned_to"`
	Status     string `json:"status"`
	Submission string `json:"submission"`
	Feedback   string `json:"feedback"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Login opens a session and keeps its CSRF token for later mutations
func (tc *TestClient) Login(username, password string) *http.Response {
	tc.t.Helper()
	resp := tc.Do(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	if resp.StatusCode == http.StatusOK {
		var body loginResponse
		decode(tc.t, resp, &body)
		tc.csrfToken = body.CSRFToken
		tc.UserID = body.User.ID
		tc.Username = body.User.Username
	}
	return resp
}

// MustLogin logs in and fails the test on anything but 200
func (tc *TestClient) MustLogin(username, password string) {
	tc.t.Helper()
	resp := tc.Login(username, password)
	require.Equal(tc.t, http.StatusOK, resp.StatusCode, "login as %s", username)
}

// Do sends a JSON request, attaching the CSRF token when the client has one
func (tc *TestClient) Do(method, path string, body any) *http.Response {
	tc.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(tc.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	require.NoError(tc.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", tc.csrfToken)
	}

	resp, err := tc.Client.Do(req)
	require.NoError(tc.t, err)
	tc.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// DropCSRF forgets the CSRF token so the next mutation is sent without one
func (tc *TestClient) DropCSRF() { tc.csrfToken = "" }

// SessionCookie returns the session cookie the server set on this client
func (tc *TestClient) SessionCookie() *http.Cookie {
	u, err := url.Parse(baseURL)
	require.NoError(tc.t, err)
	for _, c := range tc.Jar.Cookies(u) {
		if c.Name == "session_id" {
			return c
		}
	}
	return nil
}

// CreateUser creates an account through the admin API
func (tc *TestClient) CreateUser(role string) (username, password string, id string) {
	tc.t.Helper()
	username = uniqueName(role)
	password = "password-" + username
	resp := tc.Do(http.MethodPost, "/api/v1/users", map[string]string{
		"username": username,
		"email":    username + "@portal.test",
		"password": password,
		"role":     role,
	})
	require.Equal(tc.t, http.StatusCreated, resp.StatusCode)

	var user userResponse
	decode(tc.t, resp, &user)
	return username, password, user.ID
}

// CreateAssignment hands a new assignment to assigneeID
func (tc *TestClient) CreateAssignment(title, assigneeID string) assignmentResponse {
	tc.t.Helper()
	resp := tc.Do(http.MethodPost, "/api/v1/assignments", map[string]string{
		"title":       title,
		"description": "e2e",
		"assigned_to": assigneeID,
	})
	require.Equal(tc.t, http.StatusCreated, resp.StatusCode)

	var a assignmentResponse
	decode(tc.t, resp, &a)
	return a
}

// DialNotifications opens the notification websocket with the client's session
func (tc *TestClient) DialNotifications() (*websocket.Conn, *http.Response, error) {
	tc.t.Helper()
	header := http.Header{}
	if c := tc.SessionCookie(); c != nil {
		header.Set("Cookie", c.String())
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws/notifications", header)
	if conn != nil {
		tc.t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

// newAdmin returns a client logged in as the seeded admin
func newAdmin(t *testing.T) *TestClient {
	t.Helper()
	admin := NewTestClient(t)
	admin.MustLogin(adminUsername, adminPassword)
	return admin
}

// newMember creates a user with role and returns a client logged in as them
func newMember(t *testing.T, admin *TestClient, role string) *TestClient {
	t.Helper()
	username, password, _ := admin.CreateUser(role)
	member := NewTestClient(t)
	member.MustLogin(username, password)
	return member
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
