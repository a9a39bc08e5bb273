package websocket

import (
	"context"
	"log/slog"

	"leadership-portal/internal/observability"
)

// Delivery results recorded on the notifications metric.
const (
	resultDelivered = "delivered"
	resultOffline   = "offline"
	resultDropped   = "dropped"
)

// notification is a payload addressed to every connection of one user
type notification struct {
	UserID  string
	Payload []byte
}

// Hub tracks live notification connections by user and fans payloads out
// to them. All map access happens on the Run goroutine.
type Hub struct {
	// Registered clients by user ID
	clients map[string]map[*Client]bool

	notify     chan *notification
	register   chan *Client
	unregister chan *Client

	// Session tokens whose connections must be closed, e.g. after logout
	disconnect chan string

	// Shutdown signal
	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		notify:     make(chan *notification, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		disconnect: make(chan string, 16),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("notification hub shutting down")
			return ctx.Err()

		case client := <-h.register:
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			observability.WebSocketConnectionsActive.Inc()
			slog.Debug("notification client registered", slog.String("user_id", client.userID))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case token := <-h.disconnect:
			for _, clients := range h.clients {
				for client := range clients {
					if client.sessionToken == token {
						h.unregisterClient(client)
					}
				}
			}

		case n := <-h.notify:
			clients, ok := h.clients[n.UserID]
			if !ok {
				observability.NotificationsSent.WithLabelValues(resultOffline).Inc()
				continue
			}
			for client := range clients {
				select {
				case client.send <- n.Payload:
					observability.NotificationsSent.WithLabelValues(resultDelivered).Inc()
				default:
					// slow consumer
					h.unregisterClient(client)
					observability.NotificationsSent.WithLabelValues(resultDropped).Inc()
				}
			}
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	observability.WebSocketConnectionsActive.Dec()
	slog.Debug("notification client unregistered", slog.String("user_id", client.userID))

	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
}

// shutdown closes every client's send channel so the write pumps exit
func (h *Hub) shutdown() {
	close(h.done)

	for _, clients := range h.clients {
		for client := range clients {
			h.unregisterClient(client)
		}
	}

	slog.Info("notification hub shutdown complete")
}

// Notify queues payload for every connection of userID. It never blocks the
// caller: when the queue is full or the hub has stopped the payload is
// dropped, since notifications are best effort.
func (h *Hub) Notify(userID string, payload []byte) {
	select {
	case h.notify <- &notification{UserID: userID, Payload: payload}:
	case <-h.done:
		observability.NotificationsSent.WithLabelValues(resultDropped).Inc()
	default:
		observability.NotificationsSent.WithLabelValues(resultDropped).Inc()
	}
}

// DisconnectSession closes the connections opened under sessionToken.
func (h *Hub) DisconnectSession(sessionToken string) {
	select {
	case h.disconnect <- sessionToken:
	case <-h.done:
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client. Safe to call after the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
