package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/pkg/user"
)

const (
	HeaderTruncated  = "X-Truncated"
	HeaderNextBefore = "X-Next-Before"
)

func bind(c echo.Context, params interface{}) error {
	if err := c.Bind(params); err != nil {
		return fmt.Errorf("%w: %s", model.ErrorValidation, err.Error())
	}
	return nil
}

func CreateMessage(svc ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.CreateMessageParams{}
		if err := bind(c, params); err != nil {
			return err
		}
		if err := authorize(c, params.CreatorID); err != nil {
			return err
		}
		msg, err := svc.CreateMessage(c.Request().Context(), params)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, msg)
	}
}

func ListMessages(svc ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.ListMessagesParams{}
		if err := bind(c, params); err != nil {
			return err
		}
		if err := authorize(c, params.UserID); err != nil {
			return err
		}
		list, err := svc.ListMessages(c.Request().Context(), params)
		if err != nil {
			return err
		}
		if list.Messages == nil {
			list.Messages = []*model.Message{}
		}
		if list.Truncated && len(list.Messages) > 0 {
			c.Response().Header().Set(HeaderTruncated, "true")
			c.Response().Header().Set(HeaderNextBefore, list.Messages[0].CreatedAt.Format(time.RFC3339Nano))
		}
		return c.JSON(http.StatusOK, list.Messages)
	}
}

func GetMessage(svc ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		msg, err := svc.GetMessage(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}
		if identity := c.Get(identityKey); identity != nil && !msg.HasRecipient(identity.(user.ID)) {
			return fmt.Errorf("%w: message %s", model.ErrorNotFound, msg.ID)
		}
		return c.JSON(http.StatusOK, msg)
	}
}

func UpdateProposalStatus(svc ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.UpdateStatusParams{}
		if err := bind(c, params); err != nil {
			return err
		}
		if err := authorize(c, params.ActorID); err != nil {
			return err
		}
		update, err := svc.UpdateProposalStatus(c.Request().Context(), c.Param("id"), params)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, update)
	}
}

func ListAppointments(svc ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("userId")
		if err := authorize(c, userID); err != nil {
			return err
		}
		appointments, err := svc.ListAppointments(c.Request().Context(), userID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, appointments)
	}
}

func CreateInquiry(svc ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.CreateInquiryParams{}
		if err := bind(c, params); err != nil {
			return err
		}
		if err := authorize(c, params.StudentID); err != nil {
			return err
		}
		inquiry, err := svc.CreateInquiry(c.Request().Context(), params)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, inquiry)
	}
}
