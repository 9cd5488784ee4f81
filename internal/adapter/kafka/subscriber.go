package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/kitchen-order-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewReader builds a consumer-group reader; offsets are committed explicitly.
func NewReader(brokers []string, topic, groupID string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Subscriber consumes one topic. A message's offset is committed after the
// handler succeeds or rejects it as undecodable; other failures are retried
// with backoff so later messages of the partition are not processed first.
type Subscriber struct {
	Reader         messageReader
	HandlerTimeout time.Duration
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
}

// Subscribe blocks until ctx is done or the reader fails. The reader is
// closed on return.
func (s *Subscriber) Subscribe(ctx context.Context, handler func(ctx context.Context, raw []byte) error) error {
	defer s.Reader.Close()
	for {
		msg, err := s.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		if !s.handle(ctx, handler, msg) {
			return nil
		}
		if err := s.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger().ErrorContext(ctx, "commit failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// handle retries until the message is settled; false means ctx ended first.
func (s *Subscriber) handle(ctx context.Context, handler func(ctx context.Context, raw []byte) error, msg kafkago.Message) bool {
	log := s.logger()
	backoff := s.minBackoff()
	for {
		hCtx, cancel := context.WithTimeout(ctx, s.handlerTimeout())
		err := handler(hCtx, msg.Value)
		cancel()
		switch {
		case err == nil:
			return true
		case errors.Is(err, domain.ErrValidation):
			log.WarnContext(ctx, "dropping undecodable message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
			return true
		}
		log.ErrorContext(ctx, "handler error, retrying", "topic", msg.Topic, "offset", msg.Offset, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff() {
			backoff = s.maxBackoff()
		}
	}
}

func (s *Subscriber) handlerTimeout() time.Duration {
	if s.HandlerTimeout <= 0 {
		return 10 * time.Second
	}
	return s.HandlerTimeout
}

func (s *Subscriber) minBackoff() time.Duration {
	if s.MinBackoff <= 0 {
		return 500 * time.Millisecond
	}
	return s.MinBackoff
}

func (s *Subscriber) maxBackoff() time.Duration {
	if s.MaxBackoff <= 0 {
		return 30 * time.Second
	}
	return s.MaxBackoff
}

func (s *Subscriber) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

var _ domain.MessageSubscriber = (*Subscriber)(nil)
