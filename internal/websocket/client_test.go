package websocket

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn records writes and serves reads from a channel
type mockConn struct {
	mu       sync.Mutex
	reads    chan []byte
	written  [][]byte
	types    []int
	closed   bool
	writeErr error
}

func newMockConn() *mockConn {
	return &mockConn{reads: make(chan []byte, 10)}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-m.reads
	if !ok {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseGoingAway}
	}
	return websocket.TextMessage, msg, nil
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.types = append(m.types, messageType)
	m.written = append(m.written, data)
	return nil
}

func (m *mockConn) SetReadLimit(int64)                       {}
func (m *mockConn) SetReadDeadline(time.Time) error          { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error         { return nil }
func (m *mockConn) SetPongHandler(func(appData string) error) {}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) snapshot() ([]int, [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.types...), append([][]byte(nil), m.written...)
}

func TestClient_WritePumpDeliversThenCloses(t *testing.T) {
	hub := NewHub()
	conn := newMockConn()
	client := NewClient(hub, conn, "user-1", "s1")

	done := make(chan struct{})
	go func() {
		client.WritePump()
		close(done)
	}()

	client.send <- []byte(`{"type":"assignment_reviewed"}`)
	close(client.send)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not exit")
	}

	types, written := conn.snapshot()
	require.Len(t, written, 2)
	assert.Equal(t, websocket.TextMessage, types[0])
	assert.Equal(t, `{"type":"assignment_reviewed"}`, string(written[0]))
	assert.Equal(t, websocket.CloseMessage, types[1])
	assert.True(t, conn.isClosed())
}

func TestClient_WritePumpStopsOnWriteError(t *testing.T) {
	conn := newMockConn()
	conn.writeErr = errors.New("broken pipe")
	client := NewClient(NewHub(), conn, "user-1", "s1")

	done := make(chan struct{})
	go func() {
		client.WritePump()
		close(done)
	}()
	client.send <- []byte("x")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not exit")
	}
	assert.True(t, conn.isClosed())
}

func TestClient_ReadPumpUnregistersOnClose(t *testing.T) {
	hub, _ := runHub(t)
	conn := newMockConn()
	client := NewClient(hub, conn, "user-1", "s1")
	require.True(t, hub.Register(client))

	done := make(chan struct{})
	go func() {
		client.ReadPump()
		close(done)
	}()

	conn.reads <- []byte("ignored")
	close(conn.reads)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read pump did not exit")
	}
	_, ok := receive(t, client.send)
	assert.False(t, ok, "client unregistered from hub")
	assert.True(t, conn.isClosed())
}

func TestClient_CloseConnectionIdempotent(t *testing.T) {
	conn := newMockConn()
	client := NewClient(NewHub(), conn, "user-1", "s1")

	client.closeConnection()
	client.closeConnection()

	assert.True(t, conn.isClosed())
	assert.ErrorIs(t, client.writeMessage(websocket.TextMessage, []byte("late")), websocket.ErrCloseSent)
}

func TestClient_ConcurrentWrites(t *testing.T) {
	conn := newMockConn()
	client := NewClient(NewHub(), conn, "user-1", "s1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = client.writeMessage(websocket.TextMessage, []byte("n"))
		}()
	}
	wg.Wait()

	_, written := conn.snapshot()
	assert.Len(t, written, 20)
}

// TestClient_RealConnection runs both pumps over a gorilla connection.
func TestClient_RealConnection(t *testing.T) {
	hub, _ := runHub(t)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, "user-1", "s1")
		if !hub.Register(client) {
			_ = conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
	defer server.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	// registration happens in the server goroutine; retry until delivered
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	received := make(chan string, 1)
	go func() {
		_, msg, err := ws.ReadMessage()
		if err == nil {
			received <- string(msg)
		}
	}()

	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case msg := <-received:
			assert.Equal(t, `{"type":"assignment_created"}`, msg)
			return
		case <-ticker.C:
			hub.Notify("user-1", []byte(`{"type":"assignment_created"}`))
		case <-deadline:
			t.Fatal("notification not received")
		}
	}
}
