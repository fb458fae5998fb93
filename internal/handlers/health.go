package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"uk.co.dudmesh.conversations/internal/model"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type health struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func Health(db Pinger, connections func() int) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := db.Ping(c.Request().Context()); err != nil {
			return fmt.Errorf("%w: %w", model.ErrorStore, err)
		}
		return c.JSON(http.StatusOK, health{Status: "ok", Connections: connections()})
	}
}
