package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// SessionCookieName mirrors the cookie set at login
const SessionCookieName = "session_id"

// NewJSONRequest creates a new HTTP request with JSON body
func NewJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionCookie attaches the session cookie to req
func WithSessionCookie(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	return req
}

// FindCookie returns the named cookie from the response, or nil
func FindCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// DecodeJSON decodes JSON response body into the given type
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}

// AssertJSONError fails unless the response has the status and an
// {"error": msg} body
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMsg string) {
	t.Helper()
	if w.Code != expectedStatus {
		t.Errorf("expected status %d, got %d. Body: %s", expectedStatus, w.Code, w.Body.String())
		return
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Errorf("response is not a JSON error: %v. Body: %s", err, w.Body.String())
		return
	}
	if body["error"] != expectedMsg {
		t.Errorf("error message: got %q, want %q", body["error"], expectedMsg)
	}
}

// AssertCookie fails if the response doesn't set a cookie with the given name
func AssertCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	c := FindCookie(w, name)
	if c == nil {
		t.Errorf("expected cookie %q not found", name)
	}
	return c
}

// AssertCookieCleared fails unless the response expires the named cookie
func AssertCookieCleared(t *testing.T, w *httptest.ResponseRecorder, name string) {
	t.Helper()
	c := FindCookie(w, name)
	if c == nil {
		t.Errorf("expected cookie %q to be cleared, but it was not set", name)
		return
	}
	if c.Value != "" || c.MaxAge >= 0 {
		t.Errorf("cookie %q not cleared: value=%q max-age=%d", name, c.Value, c.MaxAge)
	}
}
