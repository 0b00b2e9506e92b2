package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendQueue    = 64
)

// Hub fans accepted batches out to websocket viewers.
// A viewer whose queue is full is disconnected rather than blocking the ingest path.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	onChange func(clients int)

	mu      sync.Mutex
	clients map[*viewer]struct{}
	closed  bool
}

type viewer struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger.With("component", "live"),
		clients: make(map[*viewer]struct{}),
	}
}

// OnChange installs a callback fired with the viewer count after every join or leave.
func (h *Hub) OnChange(fn func(clients int)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and registers the viewer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	v := &viewer{conn: conn, send: make(chan []byte, sendQueue)}
	if !h.add(v) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.logger.Info("Viewer connected", "remote", r.RemoteAddr)

	go h.writeLoop(v)
	go h.readLoop(v)
}

// Broadcast queues data for every viewer.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	var slow []*viewer
	for v := range h.clients {
		select {
		case v.send <- data:
		default:
			slow = append(slow, v)
		}
	}
	h.mu.Unlock()

	for _, v := range slow {
		h.logger.Warn("Dropping slow viewer", "remote", v.conn.RemoteAddr().String())
		h.remove(v)
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every viewer and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	viewers := make([]*viewer, 0, len(h.clients))
	for v := range h.clients {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()

	for _, v := range viewers {
		h.remove(v)
	}
}

func (h *Hub) add(v *viewer) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[v] = struct{}{}
	n, fn := len(h.clients), h.onChange
	h.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	return true
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	_, ok := h.clients[v]
	delete(h.clients, v)
	n, fn := len(h.clients), h.onChange
	h.mu.Unlock()

	v.closeOnce.Do(func() { close(v.send) })
	if ok && fn != nil {
		fn(n)
	}
}

// writeLoop is the only writer on the connection.
func (h *Hub) writeLoop(v *viewer) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(v)
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(v)
				return
			}
		}
	}
}

// readLoop discards viewer input and detects disconnects.
func (h *Hub) readLoop(v *viewer) {
	defer h.remove(v)

	v.conn.SetReadLimit(512)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}
