package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/safelog/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub fans notifications out to every websocket an address has open.
// Each connection has a bounded outbound queue; when it is full the
// notification is dropped for that connection.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]map[*client]struct{}
	queueSize int
	upgrader  websocket.Upgrader
	log       logging.Logger
}

type client struct {
	address string
	conn    *websocket.Conn
	send    chan []byte
}

// NewHub returns a hub with queueSize buffered messages per connection.
// checkOrigin may be nil to accept any origin.
func NewHub(queueSize int, checkOrigin func(r *http.Request) bool, log logging.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 16
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		conns:     map[string]map[*client]struct{}{},
		queueSize: queueSize,
		upgrader:  websocket.Upgrader{CheckOrigin: checkOrigin},
		log:       log,
	}
}

// Notify queues n for every connection of address.
func (h *Hub) Notify(ctx context.Context, address string, n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		h.log.Error(ctx, "failed to encode notification", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[address] {
		select {
		case c.send <- payload:
		default:
			h.log.Warn(ctx, "notification dropped, queue full", "address", address, "type", n.Type)
		}
	}
}

// Connections returns how many sockets address has open.
func (h *Hub) Connections(address string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[address])
}

// Serve upgrades the request and streams notifications for address until
// the client disconnects. The caller authenticates address beforehand.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, address string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := &client{address: address, conn: conn, send: make(chan []byte, h.queueSize)}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.address]
	if !ok {
		set = map[*client]struct{}{}
		h.conns[c.address] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.address]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.conns, c.address)
	}
}

// readPump discards client frames and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
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

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
