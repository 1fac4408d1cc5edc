package emuweb

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// sendBuffer is the per-client outbound queue. A client that cannot
	// drain this many frames is disconnected rather than allowed to stall
	// the broadcast path.
	sendBuffer = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second

	maxInboundBytes = 512
)

// frame is one outbound websocket message: a bus event re-encoded for the
// control panel.
type frame struct {
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans bus events out to connected control panel clients.
type hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

func (h *hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("Client registered", "total", len(h.clients))
	return true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Debug("Client unregistered", "total", len(h.clients))
	}
}

// broadcast queues data on every client. A client whose buffer is full is
// dropped: the board state it missed cannot be reconstructed from later
// frames anyway.
func (h *hub) broadcast(data []byte) {
	h.mu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("Client send buffer full, dropping client")
			h.unregister(c)
			_ = c.conn.Close()
		}
	}
}

// broadcastEvent marshals and broadcasts one frame.
func (h *hub) broadcastEvent(eventType string, payload map[string]any, ts time.Time) {
	data, err := json.Marshal(frame{Event: eventType, Payload: payload, Timestamp: ts})
	if err != nil {
		h.logger.Error("Frame marshal failed", "event", eventType, "error", err)
		return
	}
	h.broadcast(data)
}

// closeAll disconnects every client and refuses new registrations.
func (h *hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		_ = c.conn.Close()
	}
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// upgrader accepts any origin: the surface binds to loopback and exists for
// local debugging, not the open internet.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// serveWS upgrades the connection, sends the initial state snapshot, and
// starts the read/write pumps.
func (h *hub) serveWS(w http.ResponseWriter, r *http.Request, initial []byte) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	// Queue the snapshot before registering so it precedes any broadcast and
	// cannot race a shutdown close of the send channel.
	c.send <- initial
	if !h.register(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go func() {
		c.readPump()
		h.unregister(c)
	}()
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings. It exits when the send channel closes.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// readPump consumes inbound messages. The stream is one-way; inbound frames
// only matter as liveness signals, so everything is read and discarded.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
