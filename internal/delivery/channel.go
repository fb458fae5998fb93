package delivery

import (
	"context"
	"fmt"
	"sync"

	"uk.co.dudmesh.conversations/internal/model"
)

const outboxSize = 16

// outbox is the part shared by every transport: a bounded queue drained by
// the goroutine that owns the connection, and a done signal raised once on close.
type outbox struct {
	id    string
	queue chan *model.Message
	done  chan struct{}
	once  sync.Once
}

func newOutbox() *outbox {
	return &outbox{
		id:    model.CreateID(),
		queue: make(chan *model.Message, outboxSize),
		done:  make(chan struct{}),
	}
}

func (o *outbox) ID() string {
	return o.id
}

// Send enqueues msg, giving up when ctx expires or the channel closes.
func (o *outbox) Send(ctx context.Context, msg *model.Message) error {
	select {
	case <-o.done:
		return ErrorChannelClosed
	default:
	}
	select {
	case o.queue <- msg:
		return nil
	case <-o.done:
		return ErrorChannelClosed
	case <-ctx.Done():
		return fmt.Errorf("queue full: %w", ctx.Err())
	}
}

func (o *outbox) Close() error {
	o.once.Do(func() {
		close(o.done)
	})
	return nil
}

func (o *outbox) Done() <-chan struct{} {
	return o.done
}

// Handshake is the first event on every push connection.
type Handshake struct {
	Connected bool       `json:"connected"`
	UserID    string     `json:"userId"`
	Role      model.Role `json:"role"`
}

// Event is the frame written to websocket clients.
type Event struct {
	Type      string         `json:"type"`
	Handshake *Handshake     `json:"handshake,omitempty"`
	Message   *model.Message `json:"message,omitempty"`
}
