package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/rabbitmq/amqp091-go"
	"uk.co.dudmesh.conversations/internal/model"
)

const (
	RoutingKey       = "conversation.message"
	EventType        = "conversation.message.committed"
	publishTimeout   = 5 * time.Second
	maxDialDelay     = 60 * time.Second
	defaultDialTries = 5
)

type Meta struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
}

type Envelope struct {
	Meta    Meta           `json:"meta"`
	Message *model.Message `json:"message"`
}

func Encode(msg *model.Message) ([]byte, error) {
	return json.Marshal(Envelope{
		Meta: Meta{
			ID:        uuid.NewString(),
			Type:      EventType,
			Timestamp: time.Now().UTC(),
		},
		Message: msg,
	})
}

func Decode(body []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(body, env); err != nil {
		return nil, fmt.Errorf("unmarshalling envelope: %w", err)
	}
	if env.Meta.Type != EventType {
		return nil, fmt.Errorf("unexpected event type %q", env.Meta.Type)
	}
	if env.Message == nil || env.Message.ID == "" {
		return nil, errors.New("envelope without message")
	}
	return env, nil
}

// AMQP publishes committed messages to a topic exchange so a delivery
// process elsewhere can fan them out.
type AMQP struct {
	conn     *amqp091.Connection
	exchange string
	wg       sync.WaitGroup
}

type AMQPOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	Delay         time.Duration
}

func NewAMQP(ctx context.Context, opts AMQPOptions) (*AMQP, error) {
	conn, err := DialWithRetry(ctx, opts)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", opts.Exchange, err)
	}
	return &AMQP{conn: conn, exchange: opts.Exchange}, nil
}

// DialWithRetry connects with exponential backoff, giving up early if ctx ends.
func DialWithRetry(ctx context.Context, opts AMQPOptions) (*amqp091.Connection, error) {
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = defaultDialTries
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				log.Infof("amqp connected on attempt %d", i)
			}
			return conn, nil
		}
		lastErr = err

		sleep := delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		log.Warnf("amqp dial attempt %d failed, retrying in %s: %+v", i, sleep, err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("connecting to amqp after %d attempts: %w", attempts, lastErr)
}

func (a *AMQP) Notify(ctx context.Context, msg *model.Message) {
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := a.Publish(ctx, msg); err != nil {
			log.Errorf("publishing message %s: %+v", msg.ID, err)
		}
	}()
}

func (a *AMQP) Publish(ctx context.Context, msg *model.Message) error {
	body, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	ch, err := a.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx, a.exchange, RoutingKey, false, false, amqp091.Publishing{
		ContentType: "application/json",
		MessageId:   string(msg.ID),
		Timestamp:   time.Now(),
		Body:        body,
	})
}

// Consume binds queue to the exchange and broadcasts every message it
// receives until ctx is cancelled. An empty queue name gives this process a
// private queue, so every delivery process sees every message.
func (a *AMQP) Consume(ctx context.Context, queue string, broadcaster Broadcaster) error {
	ch, err := a.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(queue, false, true, queue == "", false, nil)
	if err != nil {
		return fmt.Errorf("declaring queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, RoutingKey, a.exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %s: %w", q.Name, err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming %s: %w", q.Name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			env, err := Decode(d.Body)
			if err != nil {
				log.Warnf("dropping notification %s: %+v", d.MessageId, err)
				continue
			}
			broadcaster.Broadcast(ctx, env.Message)
		}
	}
}

func (a *AMQP) Close() error {
	a.wg.Wait()
	return a.conn.Close()
}
