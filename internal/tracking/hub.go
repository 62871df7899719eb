// Package tracking pushes order events to the parties of each order over
// WebSocket connections.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joao-fontenele/foodorder/internal/auth"
	"github.com/joao-fontenele/foodorder/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var errHubStopped = errors.New("tracking hub stopped")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Subscribers authenticate with a token, not cookies.
	CheckOrigin: func(*http.Request) bool { return true },
}

type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	actor domain.Actor
	send  chan domain.OrderEvent
}

// Hub owns the set of connected subscribers. All membership changes go
// through Run so the clients map needs no lock on the delivery path.
type Hub struct {
	verifier   *auth.Verifier
	logger     *slog.Logger
	clients    map[*Client]struct{}
	events     chan domain.OrderEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu    sync.RWMutex
	count int
}

func NewHub(verifier *auth.Verifier, logger *slog.Logger) *Hub {
	return &Hub{
		verifier:   verifier,
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		events:     make(chan domain.OrderEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run delivers events until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setCount(len(h.clients))
			h.logger.Info("subscriber connected", "actor_id", client.actor.ID, "role", client.actor.Role, "client_count", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("subscriber disconnected", "actor_id", client.actor.ID, "client_count", len(h.clients))
			}

		case event := <-h.events:
			for client := range h.clients {
				if !event.Involves(client.actor) {
					continue
				}
				select {
				case client.send <- event:
				default:
					h.logger.Warn("subscriber too slow, disconnecting", "actor_id", client.actor.ID)
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setCount(len(h.clients))
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Publish queues an event for delivery. It blocks while the queue is
// full so that consumer offsets are not committed for undelivered
// events.
func (h *Hub) Publish(ctx context.Context, event domain.OrderEvent) error {
	select {
	case h.events <- event:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleWebSocket authenticates the subscriber before upgrading. The
// token may come from the Authorization header or the access_token
// query parameter.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.VerifyRequest(r, true)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	client := &Client{
		hub:   h,
		conn:  conn,
		actor: actor,
		send:  make(chan domain.OrderEvent, sendBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only services control frames; subscribers have nothing to
// say after the handshake.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err, "actor_id", c.actor.ID)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.hub.logger.Warn("websocket write failed", "error", err, "actor_id", c.actor.ID)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
