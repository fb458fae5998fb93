package notify

import (
	"context"
	"sync"

	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.conversations/internal/model"
)

// Notifier is told about every committed message. Implementations must not
// block the write path and never report failure to it.
type Notifier interface {
	Notify(ctx context.Context, msg *model.Message)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, msg *model.Message) int
}

// Local hands committed messages to an in-process broadcaster.
type Local struct {
	broadcaster Broadcaster
	wg          sync.WaitGroup
}

func NewLocal(broadcaster Broadcaster) *Local {
	return &Local{broadcaster: broadcaster}
}

func (l *Local) Notify(ctx context.Context, msg *model.Message) {
	ctx = context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		delivered := l.broadcaster.Broadcast(ctx, msg)
		log.Debugf("message %s pushed to %d channels", msg.ID, delivered)
	}()
}

// Wait blocks until every pending broadcast has finished.
func (l *Local) Wait() {
	l.wg.Wait()
}
