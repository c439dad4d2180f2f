package notify

import (
	"context"
	"encoding/json"

	"github.com/gatepass/gatepass/internal/adapters/rabbit"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	TicketsIssuedKey  = "tickets.issued"
	AttributionKey    = "attribution.recorded"
	NotificationQueue = "notify.q"
)

// Sink receives ticket bundles after the durable commit. Implementations
// must be safe to skip on failure: the orchestrator logs and swallows
// delivery errors, never rolls settlement back.
type Sink interface {
	Deliver(ctx context.Context, b Bundle) error
}

// QueueSink hands bundles to the notify worker over the events exchange.
type QueueSink struct {
	pub *rabbit.Publisher
}

func NewQueueSink(pub *rabbit.Publisher) *QueueSink {
	return &QueueSink{pub: pub}
}

func (s *QueueSink) Deliver(ctx context.Context, b Bundle) error {
	body, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, TicketsIssuedKey, amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        body,
	})
}

// AttributionSink forwards marketing/attribution metadata recovered from the
// gateway to the analytics pipeline. Best effort, like the QueueSink.
type AttributionSink struct {
	pub *rabbit.Publisher
}

func NewAttributionSink(pub *rabbit.Publisher) *AttributionSink {
	return &AttributionSink{pub: pub}
}

func (s *AttributionSink) Record(ctx context.Context, reference string, attribution map[string]string) error {
	body, err := json.Marshal(map[string]interface{}{
		"reference":   reference,
		"attribution": attribution,
	})
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, AttributionKey, amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        body,
	})
}
