package model

import (
	"errors"
	"fmt"
)

var (
	ErrorValidation   = errors.New("validation failed")
	ErrorNotFound     = errors.New("not found")
	ErrorStore        = errors.New("store unavailable")
	ErrorDelivery     = errors.New("delivery failed")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// ErrorInvalidTransition is also an ErrorValidation.
	ErrorInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrorValidation)
)
