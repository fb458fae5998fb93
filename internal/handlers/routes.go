package handlers

import (
	"crypto/ecdsa"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type RouteOptions struct {
	IdentityKey *ecdsa.PublicKey
	Upgrader    *websocket.Upgrader
	PollLimiter echo.MiddlewareFunc
}

func Routes(server *echo.Echo, svc ConversationService, hub Hub, opts RouteOptions) {
	upgrader := opts.Upgrader
	if upgrader == nil {
		upgrader = NewUpgrader(nil)
	}
	var pollMiddleware []echo.MiddlewareFunc
	if opts.PollLimiter != nil {
		pollMiddleware = append(pollMiddleware, opts.PollLimiter)
	}

	api := server.Group("", Authenticate(opts.IdentityKey))
	api.POST("/messages", CreateMessage(svc))
	api.GET("/messages", ListMessages(svc))
	api.GET("/messages/:id", GetMessage(svc))
	api.PATCH("/messages/:id/status", UpdateProposalStatus(svc))
	api.POST("/messages/:id/seen", MarkSeen(svc))
	api.POST("/seen", MarkSeen(svc))
	api.POST("/seen/backfill", BackfillSeen(svc))
	api.GET("/appointments", ListAppointments(svc))
	api.POST("/inquiries", CreateInquiry(svc))
	api.GET("/poll", Poll(svc), pollMiddleware...)
	api.GET("/stream", Stream(hub))
	api.GET("/ws", WebSocket(hub, upgrader))
}
