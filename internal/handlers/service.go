package handlers

import (
	"context"

	"github.com/gorilla/websocket"
	"uk.co.dudmesh.conversations/internal/delivery"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/internal/registry"
)

type ConversationService interface {
	CreateMessage(ctx context.Context, params *model.CreateMessageParams) (*model.Message, error)
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	ListMessages(ctx context.Context, params *model.ListMessagesParams) (*model.MessageList, error)
	Poll(ctx context.Context, params *model.PollParams) (*model.PollResult, error)
	UpdateProposalStatus(ctx context.Context, id string, params *model.UpdateStatusParams) (*model.StatusUpdate, error)
	MarkSeen(ctx context.Context, params *model.MarkSeenParams) (*model.MarkSeenResult, error)
	BackfillSeen(ctx context.Context, userID string) (model.BackfillResult, error)
	ListAppointments(ctx context.Context, userID string) ([]*model.Appointment, error)
	CreateInquiry(ctx context.Context, params *model.CreateInquiryParams) (*model.Inquiry, error)
}

type Hub interface {
	ServeStream(ctx context.Context, w delivery.StreamWriter, key registry.Key) error
	ServeWebSocket(ctx context.Context, conn *websocket.Conn, key registry.Key)
}
