// Package kafka carries the order channel over Kafka topics as an alternative
// to NATS Streaming. Dispatch events are keyed by order id so all events for
// one order land on the same partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/kitchen-order-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

const headerEventType = "event_type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

type Publisher struct {
	Writer messageWriter
}

// NewWriter builds a synchronous writer that waits for all in-sync replicas.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
}

func NewPublisher(w messageWriter) *Publisher {
	return &Publisher{Writer: w}
}

func (p *Publisher) PublishOrderDispatched(ctx context.Context, ev domain.DispatchEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode dispatch event: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(ev.Order.ID),
		Value: b,
		Headers: []kafkago.Header{
			{Key: headerEventType, Value: []byte(ev.Event)},
		},
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

var _ domain.EventPublisher = (*Publisher)(nil)
