// Package notify is the fire-and-forget boundary to the external
// notification service. Delivery is best-effort: publish errors are returned
// for logging but never block or fail the operation that raised the event.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event is a notification about ledger activity.
type Event struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"` // e.g. "verdict", "transfer", "movement"
	ProductID string         `json:"product_id,omitempty"`
	OrgID     string         `json:"org_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	At        time.Time      `json:"at"`
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(kind, productID, orgID string, detail map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		ProductID: productID,
		OrgID:     orgID,
		Detail:    detail,
		At:        time.Now().UTC(),
	}
}

// Notifier delivers events to the notification service.
type Notifier interface {
	Publish(ctx context.Context, e Event) error
}

// Kafka publishes events to a topic with an async writer, so callers never
// wait on broker round trips.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka builds a notifier for the given brokers and topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
	}}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.ProductID),
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error { return k.writer.Close() }

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(ctx context.Context, e Event) error { return nil }
