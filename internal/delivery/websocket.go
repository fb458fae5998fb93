package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.conversations/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type socketChannel struct {
	*outbox
	conn *websocket.Conn
}

// ServeWebSocket registers conn as the push channel for key and blocks until
// the client goes away, the channel is evicted or ctx is cancelled. The
// registry entry is released before it returns.
func (h *Hub) ServeWebSocket(ctx context.Context, conn *websocket.Conn, key registry.Key) {
	ch := &socketChannel{outbox: newOutbox(), conn: conn}
	release := h.Connect(key, ch)
	defer release()
	defer conn.Close()

	go ch.readPump()

	handshake := Event{Type: "handshake", Handshake: &Handshake{Connected: true, UserID: string(key.UserID), Role: key.Role}}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(handshake); err != nil {
		log.Warnf("writing handshake to %s: %+v", key, err)
		return
	}

	ch.writePump(ctx, key)
}

// readPump only exists to notice the client leaving and to answer pings.
func (c *socketChannel) readPump() {
	defer c.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("websocket %s read: %+v", c.id, err)
			}
			return
		}
	}
}

func (c *socketChannel) writePump(ctx context.Context, key registry.Key) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(Event{Type: "message", Message: msg}); err != nil {
				log.Warnf("writing message %s to %s: %+v", msg.ID, key, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			err := c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				log.Debugf("closing websocket %s: %+v", c.id, err)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}
