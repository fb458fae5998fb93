package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.conversations/internal/model"
)

type errorResponse struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrorInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrorValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrorStore):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ErrorHandler turns domain errors into HTTP responses. Internal failures are
// logged and reported without detail.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message, ok := httpErr.Message.(string)
		if !ok {
			message = http.StatusText(httpErr.Code)
		}
		err = c.JSON(httpErr.Code, errorResponse{Message: message})
	} else {
		status := statusFor(err)
		res := errorResponse{Message: err.Error()}
		switch status {
		case http.StatusInternalServerError:
			log.Errorf("%s %s: %+v", c.Request().Method, c.Path(), err)
			res.Message = http.StatusText(status)
		case http.StatusServiceUnavailable:
			log.Warnf("%s %s: %+v", c.Request().Method, c.Path(), err)
			res.Message = http.StatusText(status)
			res.Retryable = true
		}
		err = c.JSON(status, res)
	}
	if err != nil {
		log.Errorf("writing error response: %+v", err)
	}
}
