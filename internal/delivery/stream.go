package delivery

import (
	"context"

	"uk.co.dudmesh.conversations/internal/registry"
)

// StreamWriter writes one server-sent event and flushes it.
type StreamWriter interface {
	WriteEvent(event string, data interface{}) error
}

// ServeStream holds a server-push stream open for key. It writes the
// handshake, relays broadcasts, and returns once ctx is cancelled (the client
// went away) or the channel is closed, releasing the registry entry.
func (h *Hub) ServeStream(ctx context.Context, w StreamWriter, key registry.Key) error {
	ch := newOutbox()
	release := h.Connect(key, ch)
	defer release()

	err := w.WriteEvent("handshake", Handshake{Connected: true, UserID: string(key.UserID), Role: key.Role})
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch.Done():
			return nil
		case msg := <-ch.queue:
			if err := w.WriteEvent("message", msg); err != nil {
				return err
			}
		}
	}
}
