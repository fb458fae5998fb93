package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/internal/registry"
	"uk.co.dudmesh.conversations/pkg/user"
)

type eventWriter struct {
	res *echo.Response
}

func (w *eventWriter) WriteEvent(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshalling %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w.res, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}

func connectionKey(c echo.Context) (registry.Key, error) {
	raw := c.QueryParam("userId")
	id, err := user.Parse(raw)
	if err != nil {
		return registry.Key{}, fmt.Errorf("%w: userId: %w", model.ErrorValidation, err)
	}
	role, err := model.ParseRole(c.QueryParam("role"))
	if err != nil {
		return registry.Key{}, err
	}
	if err := authorize(c, raw); err != nil {
		return registry.Key{}, err
	}
	return registry.Key{UserID: id, Role: role}, nil
}

// Stream holds a server-sent event stream open until the client leaves.
func Stream(hub Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		key, err := connectionKey(c)
		if err != nil {
			return err
		}

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)

		return hub.ServeStream(c.Request().Context(), &eventWriter{res: res}, key)
	}
}
