package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/internal/registry"
)

const DefaultPushTimeout = 1500 * time.Millisecond

var ErrorChannelClosed = errors.New("channel closed")

type Config interface {
	PushTimeout() time.Duration
	RegistryShards() int
}

// Hub owns the connection registry and fans persisted messages out to every
// connected participant. It keeps no durable state; clients that miss a push
// catch up by polling.
type Hub struct {
	registry    *registry.Registry
	pushTimeout time.Duration
}

func New(config Config) *Hub {
	timeout := config.PushTimeout()
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}
	return &Hub{
		registry:    registry.New(config.RegistryShards()),
		pushTimeout: timeout,
	}
}

// Connect registers ch for key, closing any channel it replaces. The returned
// release func removes the entry (if still current) and closes ch; it is safe
// to call more than once.
func (h *Hub) Connect(key registry.Key, ch registry.Channel) func() {
	if previous := h.registry.Register(key, ch); previous != nil {
		log.Infof("replacing channel %s for %s", previous.ID(), key)
		previous.Close()
	}
	registryConnections.Set(float64(h.registry.Len()))
	log.Infoj(log.JSON{"event": "connect", "key": key.String(), "channel": ch.ID()})

	var once sync.Once
	return func() {
		once.Do(func() {
			if h.registry.Remove(key, ch) {
				log.Infoj(log.JSON{"event": "disconnect", "key": key.String(), "channel": ch.ID()})
			}
			ch.Close()
			registryConnections.Set(float64(h.registry.Len()))
		})
	}
}

func (h *Hub) Connections() int {
	return h.registry.Len()
}

type target struct {
	key registry.Key
	ch  registry.Channel
}

// Broadcast pushes msg to every channel registered for any recipient under
// either role and returns how many pushes succeeded. Each push is bounded by
// the push timeout and never retried; a failed channel is evicted.
func (h *Hub) Broadcast(ctx context.Context, msg *model.Message) int {
	var targets []target
	for _, recipient := range msg.Recipients {
		for _, role := range model.Roles {
			key := registry.Key{UserID: recipient, Role: role}
			if ch, ok := h.registry.Lookup(key); ok {
				targets = append(targets, target{key, ch})
			}
		}
	}
	if len(targets) == 0 {
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, t := range targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			if err := h.push(ctx, t, msg); err != nil {
				log.Warnf("delivering message %s to %s: %+v", msg.ID, t.key, err)
				deliveriesTotal.WithLabelValues("failed").Inc()
				h.evict(t)
				return
			}
			deliveriesTotal.WithLabelValues("delivered").Inc()
			mu.Lock()
			delivered++
			mu.Unlock()
		}(t)
	}
	wg.Wait()
	return delivered
}

func (h *Hub) push(ctx context.Context, t target, msg *model.Message) error {
	ctx, cancel := context.WithTimeout(ctx, h.pushTimeout)
	defer cancel()
	if err := t.ch.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: channel %s: %w", model.ErrorDelivery, t.ch.ID(), err)
	}
	return nil
}

func (h *Hub) evict(t target) {
	if h.registry.Remove(t.key, t.ch) {
		evictionsTotal.Inc()
		registryConnections.Set(float64(h.registry.Len()))
	}
	t.ch.Close()
}

// Close disconnects every client. Used on shutdown.
func (h *Hub) Close() {
	for _, ch := range h.registry.Drain() {
		ch.Close()
	}
	registryConnections.Set(0)
}
