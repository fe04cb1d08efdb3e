package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/zoe-ai/zoe-core/internal/observability"
)

// Handler processes one decoded envelope. Returning an error marks the
// attempt as failed; the consumer retries up to maxAttempts before routing
// to the DLQ topic.
type Handler func(ctx context.Context, env Envelope) error

// HandlerSet dispatches by Kind; a Kind with no registered handler is
// dropped (logged, offset committed) rather than retried forever.
type HandlerSet map[Kind]Handler

const (
	maxAttempts  = 3
	baseBackoff  = 200 * time.Millisecond
)

// Consumer reads job envelopes from one topic with a worker pool, retrying
// transient handler failures with exponential backoff before giving up and
// publishing a FailureEnvelope to topic+".dlq" (grounded on the orchestrator
// command-handling pattern: retry-then-DLQ, commit regardless of outcome so
// a poison message never blocks the partition).
type Consumer struct {
	reader      *kafka.Reader
	dlqWriter   Writer
	dlqTopic    string
	handlers    HandlerSet
	workerCount int
}

func NewConsumer(brokers []string, groupID, topic string, dlqWriter Writer, handlers HandlerSet, workerCount int) *Consumer {
	if workerCount <= 0 {
		workerCount = 4
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:      reader,
		dlqWriter:   dlqWriter,
		dlqTopic:    topic + ".dlq",
		handlers:    handlers,
		workerCount: workerCount,
	}
}

// Run drains the topic until ctx is canceled. It never returns a handler
// error — failures are logged and routed to the DLQ, never bubbled up,
// since a single poison message must not stop the rest of the stream.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	jobs := make(chan kafka.Message, c.workerCount*4)
	done := make(chan struct{})

	for i := 0; i < c.workerCount; i++ {
		go c.worker(ctx, jobs, done)
	}

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				close(jobs)
				for i := 0; i < c.workerCount; i++ {
					<-done
				}
				return ctx.Err()
			}
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("eventbus fetch error")
			continue
		}
		select {
		case jobs <- msg:
		case <-ctx.Done():
			close(jobs)
			return ctx.Err()
		}
	}
}

func (c *Consumer) worker(ctx context.Context, jobs <-chan kafka.Message, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for msg := range jobs {
		c.process(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("eventbus commit failed")
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		c.toDLQ(ctx, Envelope{}, 0, err)
		return
	}

	handler, ok := c.handlers[env.Kind]
	if !ok {
		observability.LoggerWithTrace(ctx).Warn().Str("kind", string(env.Kind)).Msg("eventbus: no handler registered, dropping")
		return
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := handler(ctx, env); err != nil {
			lastErr = err
			if attempt < maxAttempts {
				backoff := baseBackoff << uint(attempt-1)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				continue
			}
			c.toDLQ(ctx, env, attempt, lastErr)
			return
		}
		return // success
	}
}

func (c *Consumer) toDLQ(ctx context.Context, env Envelope, attempts int, err error) {
	fail := FailureEnvelope{CorrelationID: env.CorrelationID, Kind: env.Kind, Error: err.Error(), Attempts: attempts}
	body, marshalErr := json.Marshal(fail)
	if marshalErr != nil {
		return
	}
	if werr := c.dlqWriter.WriteMessages(ctx, kafka.Message{Topic: c.dlqTopic, Key: []byte(env.CorrelationID), Value: body}); werr != nil {
		observability.LoggerWithTrace(ctx).Error().Err(werr).Msg("eventbus: failed to publish DLQ message")
	}
}
