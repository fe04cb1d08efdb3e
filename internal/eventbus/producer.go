package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Writer abstracts kafka.Writer so tests can substitute a recording fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter returns a kafka.Writer targeting topic across brokers, using
// key-hash partitioning, so messages with the same key share a partition.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

// Publisher publishes job envelopes onto the events topic, keyed by user id
// so all of one user's episode/entity/satisfaction work lands on the same
// partition and preserves per-user ordering.
type Publisher struct {
	writer Writer
}

func NewPublisher(writer Writer) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.UserID),
		Value: body,
	})
}
