// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client represents one WebSocket connection and its relay session. It owns
// the bounded outbound send queue; the hub holds only a reference for
// registry operations and never outlives the underlying transport.
type Client struct {
	id      string
	room    string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	addr    string
	closed  bool
	limiter *tokenBucket
	log     *slog.Logger
}

// newClient wraps an upgraded WebSocket connection for a specific room. The
// send channel is buffered so one slow consumer cannot stall broadcasts to
// the rest of the room.
func newClient(id, room string, conn *websocket.Conn, hub *Hub, addr string, cfg *Config, log *slog.Logger) *Client {
	cfg.sanitize()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:      id,
		room:    room,
		conn:    conn,
		send:    make(chan []byte, cfg.SendQueueSize),
		hub:     hub,
		addr:    addr,
		limiter: newTokenBucket(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		log:     log,
	}
}

// readPump pumps inbound frames from the WebSocket connection to the hub.
// It runs in a per-connection goroutine; all reads happen here so there is
// at most one reader per connection.
func (c *Client) readPump() {
	defer func() {
		// The hub may already be gone during shutdown; never block on it.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("error closing connection in readPump", "clientId", c.id, "err", err)
		}
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("error setting read deadline", "clientId", c.id, "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.allow() {
			c.log.Warn("rate limit exceeded; discarding message", "clientId", c.id, "addr", c.addr)
			continue
		}

		payload := relayPayload(raw)
		if payload == nil {
			continue
		}

		select {
		case c.hub.broadcast <- BroadcastMessage{Room: c.room, Sender: c, Payload: payload}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

// logReadError classifies a read failure. Every disconnect reason is treated
// as a normal close event; nothing propagates beyond this connection.
func (c *Client) logReadError(err error) {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug("client disconnected", "clientId", c.id, "addr", c.addr)
	case isExpectedCloseError(err):
		c.log.Debug("client connection closed", "clientId", c.id, "addr", c.addr)
	default:
		c.log.Warn("websocket read error", "clientId", c.id, "addr", c.addr, "err", err)
	}
}

// writePump pumps queued payloads from the hub to the WebSocket connection
// and keeps the connection alive with periodic pings. Each queued unit goes
// out as exactly one text frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("error closing connection in writePump", "clientId", c.id, "err", err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Debug("write error", "clientId", c.id, "err", err)
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.ctx.Done():
			return
		}
	}
}
