package natsstan

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/kitchen-order-service/internal/domain"
)

type publishConn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends dispatch events to a NATS Streaming subject. Publish blocks
// until the streaming server has persisted the message.
type Publisher struct {
	Conn    publishConn
	Subject string
}

func NewPublisher(conn publishConn, subject string) *Publisher {
	return &Publisher{Conn: conn, Subject: subject}
}

func (p *Publisher) PublishOrderDispatched(ctx context.Context, ev domain.DispatchEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode dispatch event: %w", err)
	}
	if err := p.Conn.Publish(p.Subject, b); err != nil {
		return fmt.Errorf("stan publish %s: %w", p.Subject, err)
	}
	return nil
}

var _ domain.EventPublisher = (*Publisher)(nil)
