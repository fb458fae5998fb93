package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"uk.co.dudmesh.conversations/internal/model"
)

// MarkSeen acknowledges a whole conversation, or a single message when the
// route carries an id.
func MarkSeen(svc ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.MarkSeenParams{}
		if err := bind(c, params); err != nil {
			return err
		}
		if id := c.Param("id"); id != "" {
			params.MessageID = id
		}
		if err := authorize(c, params.UserID); err != nil {
			return err
		}
		result, err := svc.MarkSeen(c.Request().Context(), params)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	}
}

func BackfillSeen(svc ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.BackfillParams{}
		if err := bind(c, params); err != nil {
			return err
		}
		if err := authorize(c, params.UserID); err != nil {
			return err
		}
		result, err := svc.BackfillSeen(c.Request().Context(), params.UserID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	}
}
