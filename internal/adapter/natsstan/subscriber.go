package natsstan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/kitchen-order-service/internal/domain"
	stan "github.com/nats-io/stan.go"
)

// Connect opens a NATS Streaming connection. An empty clientID gets a unique one.
// The returned channel receives the reason once the server drops the connection.
func Connect(clusterID, clientID, url string) (stan.Conn, <-chan error, error) {
	if clientID == "" {
		clientID = fmt.Sprintf("kitchen-orders-%d", time.Now().UnixNano())
	}
	lost := make(chan error, 1)
	sc, err := stan.Connect(clusterID, clientID,
		stan.NatsURL(url),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			select {
			case lost <- reason:
			default:
			}
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("stan connect: %w", err)
	}
	return sc, lost, nil
}

type queueSubscriber interface {
	QueueSubscribe(subject, qgroup string, cb stan.MsgHandler, opts ...stan.SubscriptionOption) (stan.Subscription, error)
}

// Subscriber consumes a durable queue subscription with manual acks.
// A message is acked after the handler succeeds or when it can never succeed
// (validation error); any other failure leaves it for redelivery after AckWait.
type Subscriber struct {
	Conn queueSubscriber
	// ConnLost reports a dropped connection; Subscribe returns the reason.
	ConnLost       <-chan error
	Subject        string
	Queue          string
	Durable        string
	AckWait        time.Duration
	HandlerTimeout time.Duration
	Logger         *slog.Logger
}

func (s *Subscriber) Subscribe(ctx context.Context, handler func(ctx context.Context, raw []byte) error) error {
	opts := []stan.SubscriptionOption{
		stan.DurableName(s.Durable),
		stan.SetManualAckMode(),
		stan.DeliverAllAvailable(),
	}
	if s.AckWait > 0 {
		opts = append(opts, stan.AckWait(s.AckWait))
	}
	sub, err := s.Conn.QueueSubscribe(s.Subject, s.Queue, func(m *stan.Msg) {
		s.process(ctx, handler, m.Data, m.Ack)
	}, opts...)
	if err != nil {
		return fmt.Errorf("stan subscribe %s: %w", s.Subject, err)
	}
	// Close keeps the durable position; Unsubscribe would drop it.
	defer sub.Close()

	select {
	case <-ctx.Done():
		return nil
	case reason := <-s.ConnLost:
		return fmt.Errorf("stan connection lost: %w", reason)
	}
}

func (s *Subscriber) process(ctx context.Context, handler func(ctx context.Context, raw []byte) error, data []byte, ack func() error) {
	log := s.logger()
	hCtx, cancel := context.WithTimeout(ctx, s.handlerTimeout())
	defer cancel()

	if err := handler(hCtx, data); err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			log.ErrorContext(ctx, "handler error, leaving message for redelivery", "subject", s.Subject, "error", err)
			return
		}
		log.WarnContext(ctx, "dropping undecodable message", "subject", s.Subject, "error", err)
	}
	if err := ack(); err != nil {
		log.ErrorContext(ctx, "ack failed", "subject", s.Subject, "error", err)
	}
}

func (s *Subscriber) handlerTimeout() time.Duration {
	if s.HandlerTimeout <= 0 {
		return 10 * time.Second
	}
	return s.HandlerTimeout
}

func (s *Subscriber) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

var _ domain.MessageSubscriber = (*Subscriber)(nil)
