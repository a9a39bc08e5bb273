package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"leadership-portal/internal/access"
	"leadership-portal/internal/middleware"
	"leadership-portal/internal/observability"
	ws "leadership-portal/internal/websocket"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades authorized requests onto the notification hub
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. Cross-origin
// upgrades are accepted only from allowedOrigins; "*" allows any.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// HandleConnection handles WebSocket upgrade and connection. Mount it
// behind Authenticate and Require(notification_view).
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, access.MsgLoginRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.FromContext(r.Context()).Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, conn, principal.User.ID, principal.Session.Token)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
