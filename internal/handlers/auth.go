package handlers

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/pkg/crypt"
	"uk.co.dudmesh.conversations/pkg/user"
)

const (
	identityKey     = "identity"
	tokenQueryParam = "access_token"
)

// Authenticate verifies the bearer token and stores its subject as the
// caller's identity. Browsers cannot set headers on websocket or event-stream
// requests, so the token may also arrive as a query parameter.
// A nil key disables authentication.
func Authenticate(publicKey *ecdsa.PublicKey) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if publicKey == nil {
			return next
		}
		return func(c echo.Context) error {
			raw := c.QueryParam(tokenQueryParam)
			if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
				scheme, token, ok := strings.Cut(header, " ")
				if !ok || !strings.EqualFold(scheme, "bearer") {
					return fmt.Errorf("%w: expected a bearer token", model.ErrorUnauthorized)
				}
				raw = token
			}
			if raw == "" {
				return fmt.Errorf("%w: missing token", model.ErrorUnauthorized)
			}

			subject, err := crypt.VerifyToken(publicKey, raw)
			if err != nil {
				return fmt.Errorf("%w: %w", model.ErrorUnauthorized, err)
			}
			identity, err := user.Parse(subject)
			if err != nil {
				return fmt.Errorf("%w: %w", model.ErrorUnauthorized, err)
			}
			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// authorize checks that the caller acts as themselves. Unparseable ids are
// left for the service to reject.
func authorize(c echo.Context, acting string) error {
	identity, ok := c.Get(identityKey).(user.ID)
	if !ok {
		return nil
	}
	id, err := user.Parse(acting)
	if err != nil {
		return nil
	}
	if id != identity {
		return fmt.Errorf("%w: %s cannot act as %s", model.ErrorForbidden, identity, id)
	}
	return nil
}
