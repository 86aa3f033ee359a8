// Package push streams session lifecycle events and notifications to
// operational subscribers over a websocket endpoint on the ops mux.
package push

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/studyforge/planner-adapter/pkg/eventbus"
	"github.com/studyforge/planner-adapter/pkg/model"
)

const (
	// writeWait bounds a single frame write; a stalled subscriber is dropped
	// rather than allowed to hold up the broadcast.
	writeWait = 5 * time.Second

	handshakeTimeout = 10 * time.Second
)

// frame is the wire shape pushed to subscribers. Kind discriminates the
// payload for consumers multiplexing both streams over one socket.
type frame struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

const (
	kindSessionEvent = "session_event"
	kindNotification = "notification"
)

// client is one connected subscriber. Writes are serialised; the underlying
// connection supports at most one concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans session events and notifications out to websocket subscribers.
// It implements http.Handler and is mounted at /ws on the ops mux.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	clients  map[*client]struct{}
	mu       sync.Mutex
}

// NewHub creates a hub with no subscribers.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the connection as a subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("push.upgrade_failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	h.register(c)
	go h.readLoop(c)
}

// Bridge subscribes the hub to the in-process bus so every session transition
// and user-facing notification reaches connected subscribers.
func (h *Hub) Bridge(bus *eventbus.EventBus) {
	bus.Subscribe(model.SessionEvent{}, func(event interface{}) {
		ev, ok := event.(model.SessionEvent)
		if !ok {
			return
		}
		h.Broadcast(frame{Kind: kindSessionEvent, Payload: ev})
	})

	bus.Subscribe(model.Notification{}, func(event interface{}) {
		n, ok := event.(model.Notification)
		if !ok {
			return
		}
		h.Broadcast(frame{Kind: kindNotification, Payload: n})
	})
}

// Broadcast sends one JSON frame to every connected subscriber. Clients whose
// write fails are disconnected.
func (h *Hub) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("push.marshal_failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.send(data); err != nil {
			h.logger.Warn("push.send_failed", zap.Error(err))
			h.unregister(c)
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber. Used during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
	for _, c := range targets {
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)) //nolint:errcheck
		c.conn.Close()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("push.client_connected", zap.Int("clients", n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.conn.Close()
	h.logger.Info("push.client_disconnected", zap.Int("clients", n))
}

// readLoop drains inbound frames so close frames are processed. Subscribers
// are listen-only; anything they send is discarded.
func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("push.client_closed")
				return
			}
			h.logger.Debug("push.client_read_failed", zap.Error(err))
			return
		}
	}
}
