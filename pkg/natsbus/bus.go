package natsbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/logging"
)

// Bus publishes committed events to NATS JetStream so external consumers
// (audit sinks, provisioning hooks) can tail the log without touching the
// database. Delivery is at-least-once; the position makes consumers
// idempotent.
type Bus struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	streamName string
	logger     logging.Logger

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds the NATS connection and stream settings.
type Config struct {
	URL            string
	StreamName     string
	StreamSubjects []string

	// MaxAge and MaxBytes bound the stream's retention.
	MaxAge   time.Duration
	MaxBytes int64

	Logger logging.Logger
}

func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		StreamName:     "IDENTRA_EVENTS",
		StreamSubjects: []string{"events.>"},
		MaxAge:         7 * 24 * time.Hour,
		MaxBytes:       1024 * 1024 * 1024,
	}
}

func New(config Config) (*Bus, error) {
	if config.Logger == nil {
		config.Logger = logging.NewNoopLogger()
	}

	nc, err := nats.Connect(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bus := &Bus{
		nc:         nc,
		js:         js,
		streamName: config.StreamName,
		logger:     config.Logger,
		subs:       map[string]*nats.Subscription{},
	}
	if err := bus.ensureStream(config); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}
	return bus, nil
}

func (b *Bus) ensureStream(config Config) error {
	streamConfig := &nats.StreamConfig{
		Name:      config.StreamName,
		Subjects:  config.StreamSubjects,
		Retention: nats.InterestPolicy,
		MaxAge:    config.MaxAge,
		MaxBytes:  config.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	stream, err := b.js.StreamInfo(config.StreamName)
	if err != nil {
		if _, err := b.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	}

	if stream.Config.MaxAge != config.MaxAge || stream.Config.MaxBytes != config.MaxBytes {
		if _, err := b.js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("failed to update stream: %w", err)
		}
	}
	return nil
}

// Publish forwards a committed batch. The position string doubles as the
// JetStream message ID for deduplication.
func (b *Bus) Publish(events []*domain.Event) error {
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize event %s: %w", event.Type, err)
		}

		subject := fmt.Sprintf("events.%s.%s", event.AggregateType, event.Type)
		if _, err := b.js.Publish(subject, payload, nats.MsgId(event.Position.String())); err != nil {
			return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
		}
	}
	return nil
}

// Publisher adapts the bus to the event store's publish hook. Publish
// failures are logged, never propagated: the events are already durable in
// the store and consumers recover by catch-up.
func (b *Bus) Publisher() func(events []*domain.Event) {
	return func(events []*domain.Event) {
		if err := b.Publish(events); err != nil {
			b.logger.Warn("failed to publish events to bus", "error", err)
		}
	}
}

// Handler consumes one event delivered by a subscription. Returning an
// error nacks the message for redelivery.
type Handler func(event *domain.Event) error

// Subscribe creates a durable consumer for one aggregate type, or all
// types when empty.
func (b *Bus) Subscribe(consumerName string, aggregateType domain.AggregateType, handler Handler) (func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subject := "events.>"
	if aggregateType != "" {
		subject = fmt.Sprintf("events.%s.>", aggregateType)
	}

	sub, err := b.js.QueueSubscribe(subject, consumerName,
		func(msg *nats.Msg) {
			event := &domain.Event{}
			if err := json.Unmarshal(msg.Data, event); err != nil {
				b.logger.Warn("dropping undecodable bus message", "subject", msg.Subject, "error", err)
				_ = msg.Term()
				return
			}
			if err := handler(event); err != nil {
				_ = msg.Nak()
				return
			}
			_ = msg.Ack()
		},
		nats.Durable(consumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	b.subs[consumerName] = sub

	unsubscribe := func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, consumerName)
		return sub.Unsubscribe()
	}
	return unsubscribe, nil
}

// Close drops all subscriptions and the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.nc.Close()
	return nil
}
