// Package ws implements the realtime push hub. The server is push-only:
// clients connect, receive a welcome frame and then whatever the hub
// broadcasts. Delivery is best-effort with no ordering guarantee.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/notification"
)

const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// outgoing frames buffered per client before the client is considered dead
	sendBufferSize = 16
)

type Hub struct {
	logger core.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

var _ notification.Broadcaster = (*Hub)(nil) // interface compliance check

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Broadcast marshals the event once and fans it out to every connected
// client. A client whose send buffer is full is dropped; it will reconnect.
func (h *Hub) Broadcast(e notification.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("marshaling broadcast event", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var sent int
	for c := range h.clients {
		select {
		case c.send <- payload:
			sent++
		default:
			delete(h.clients, c)
			c.close()
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", map[string]interface{}{"type": e.Type, "clients": sent})
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close drops every client and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// HandleConn takes ownership of an upgraded connection: registers it, sends
// the welcome frame and runs the read/write pumps until the peer goes away.
func (h *Hub) HandleConn(conn *websocket.Conn) {
	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	// queue the welcome frame before the client is visible to Broadcast,
	// so nothing else can close the send channel under us
	if payload, err := json.Marshal(notification.NewWelcomeEvent()); err == nil {
		c.send <- payload
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("ws client connected", map[string]interface{}{"conn": c.id})

	go c.writePump()
	go c.readPump()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
		h.logger.Debug("ws client disconnected", map[string]interface{}{"conn": c.id})
	}
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// readPump discards inbound frames (the protocol is server push only) and
// unregisters the client when the peer closes.
func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(512)
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

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
