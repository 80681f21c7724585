// Package gateway streams cycle reports and fills to WebSocket clients.
// Each message is wrapped in an envelope carrying a per-channel sequence
// number; clients reconnecting with ?since=<seq> get the gap replayed.
package gateway

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const replayCapacity = 500

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans out envelopes to connected clients.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	channels map[string]*backlog
	now      func() time.Time
	log      *slog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		channels: make(map[string]*backlog),
		now:      time.Now,
		log:      slog.Default().With("component", "gateway"),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast wraps data (a JSON document) in an envelope and sends it to every
// client. Slow clients whose queue is full miss the message and can recover
// it from the channel backlog with ?since=N.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	b, ok := h.channels[channel]
	if !ok {
		b = newBacklog(channel, replayCapacity)
		h.channels[channel] = b
	}
	buf := b.append(data, now)
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- buf:
		default:
		}
	}
}

// ServeWS upgrades the request and registers the client. The initial burst
// is the latest envelope per channel, or with ?since=N every kept
// envelope with seq > N.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}

	c := &Client{conn: conn, send: make(chan []byte, 64), hub: h}

	var since int64 = -1
	if s := r.URL.Query().Get("since"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			since = n
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	for _, b := range h.channels {
		var burst [][]byte
		if since < 0 {
			burst = [][]byte{b.last()}
		} else {
			burst = b.since(since)
		}
		for _, env := range burst {
			select {
			case c.send <- env:
			default:
			}
		}
	}
	h.mu.Unlock()

	h.log.Info("ws client connected", "remote", r.RemoteAddr)
	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Register mounts the WebSocket endpoint at /ws.
func (h *Hub) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.ServeWS)
}
