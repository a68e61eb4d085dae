package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tracks the one live websocket per session and serializes writes to it.
type Hub struct {
	mu    sync.RWMutex
	wmu   sync.Mutex
	conns map[string]*websocket.Conn
}

func NewHub() *Hub {
	return &Hub{conns: map[string]*websocket.Conn{}}
}

func (h *Hub) Add(id string, c *websocket.Conn) {
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
}

func (h *Hub) Get(id string) (*websocket.Conn, bool) {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	return c, ok
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// Publish pushes one JSON event to the session's connection, if any.
// Events are best-effort; a dead connection is dropped on the next read.
func (h *Hub) Publish(id string, v interface{}) {
	c, ok := h.Get(id)
	if !ok {
		return
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	c.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = c.WriteJSON(v)
}

// PublishBinary ships one binary frame to the session's connection. It takes
// the same write lock as Publish; the connection allows only one writer at a
// time.
func (h *Hub) PublishBinary(id string, b []byte) error {
	c, ok := h.Get(id)
	if !ok {
		return errors.New("ws: no connection for session " + id)
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.WriteMessage(websocket.BinaryMessage, b)
}
