// Package kafka publishes finance events with segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/curasupply/curaledger/internal/events"
)

// DefaultTimeout bounds one Publish call when NewPublisher is given none.
const DefaultTimeout = 2 * time.Second

// Publisher writes events to Kafka, one topic per event type.
type Publisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// NewPublisher creates a publisher for brokers. Each Publish gives up after
// timeout, so an unreachable cluster delays a ledger write by at most that.
func NewPublisher(brokers []string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			WriteTimeout: timeout,
			ReadTimeout:  timeout,
		},
		timeout: timeout,
	}
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, evs ...events.Event) error {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		msg, err := Message(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing %d events: %w", len(msgs), err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Message encodes ev as a keyed JSON message on its topic.
func Message(ev events.Event) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding %s event: %w", ev.Topic(), err)
	}
	return kafka.Message{
		Topic: ev.Topic(),
		Key:   []byte(ev.Key()),
		Value: data,
	}, nil
}

var _ events.Publisher = (*Publisher)(nil)
