package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"uk.co.dudmesh.conversations/internal/model"
)

// Poll serves the pull half of the fallback channel. Clients pass meta.next
// back as since on their next call.
func Poll(svc ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.PollParams{}
		if err := bind(c, params); err != nil {
			return err
		}
		if err := authorize(c, params.UserID); err != nil {
			return err
		}
		result, err := svc.Poll(c.Request().Context(), params)
		if err != nil {
			return err
		}
		if result.Messages == nil {
			result.Messages = []*model.Message{}
		}
		return c.JSON(http.StatusOK, result)
	}
}
