package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

const socketBufferSize = 1024

// NewUpgrader accepts websocket handshakes from the given origins. A "*"
// entry, or no entries at all, accepts any origin.
func NewUpgrader(origins []string) *websocket.Upgrader {
	allowed := map[string]bool{}
	for _, o := range origins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  socketBufferSize,
		WriteBufferSize: socketBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get(echo.HeaderOrigin)
			return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
		},
	}
}

func WebSocket(hub Hub, upgrader *websocket.Upgrader) echo.HandlerFunc {
	return func(c echo.Context) error {
		key, err := connectionKey(c)
		if err != nil {
			return err
		}
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// the upgrader has already written the failure
			log.Warnf("upgrading %s: %+v", key, err)
			return nil
		}
		hub.ServeWebSocket(c.Request().Context(), conn, key)
		return nil
	}
}
