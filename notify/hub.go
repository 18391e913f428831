package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hurst-trader/interfaces"
	"hurst-trader/logging"
	"hurst-trader/models"
)

var _ interfaces.Notifier = (*Hub)(nil)

// Message types pushed to dashboard clients.
const (
	TypeNotice     = "notice"
	TypeSignal     = "signal"
	TypeSettlement = "settlement"
	TypeSnapshot   = "snapshot"
)

// Message is one websocket frame sent to clients.
type Message struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

// Hub broadcasts engine events to connected websocket clients.
type Hub struct {
	Logger logging.LoggerInterface
	// Snapshot, if set, is sent on connect and every Interval.
	Snapshot func() models.EngineSnapshot
	Interval time.Duration

	upgrader  websocket.Upgrader
	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	broadcast chan Message
}

// NewHub creates a hub with a small broadcast buffer.
func NewHub(logger logging.LoggerInterface, snapshot func() models.EngineSnapshot) *Hub {
	return &Hub{
		Logger:   logger,
		Snapshot: snapshot,
		Interval: 5 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Message, 64),
	}
}

// Notify broadcasts a text notice.
func (h *Hub) Notify(text string) {
	h.Publish(TypeNotice, text)
}

// Publish queues a message; it is dropped when the buffer is full.
func (h *Hub) Publish(kind string, data interface{}) {
	select {
	case h.broadcast <- Message{Type: kind, Time: time.Now(), Data: data}:
	default:
		h.Logger.Debug("Broadcast channel is full, skipping %s", kind)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run delivers broadcasts and periodic snapshots until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	var tick <-chan time.Time
	if h.Snapshot != nil && h.Interval > 0 {
		ticker := time.NewTicker(h.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.send(msg)
		case <-tick:
			h.send(Message{Type: TypeSnapshot, Time: time.Now(), Data: h.Snapshot()})
		}
	}
}

func (h *Hub) send(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			h.Logger.Warning("WebSocket write error: %v", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it disconnects.
func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		h.Logger.Warning("WebSocket upgrade error: %v", err)
		return
	}

	h.mu.Lock()
	if h.Snapshot != nil {
		if err := conn.WriteJSON(Message{Type: TypeSnapshot, Time: time.Now(), Data: h.Snapshot()}); err != nil {
			h.mu.Unlock()
			conn.Close()
			return
		}
	}
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// Clients only listen; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}
