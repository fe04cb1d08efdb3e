package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestPublisher_Publish_KeysByUserID(t *testing.T) {
	w := &recordingWriter{}
	pub := NewPublisher(w)
	err := pub.Publish(context.Background(), Envelope{CorrelationID: "c1", Kind: KindEpisodeClosed, UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "alice", string(w.msgs[0].Key))

	var decoded Envelope
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, KindEpisodeClosed, decoded.Kind)
}

func TestConsumer_Process_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	handlers := HandlerSet{
		KindEntityExtraction: func(ctx context.Context, env Envelope) error {
			calls++
			if calls < 2 {
				return errors.New("transient")
			}
			return nil
		},
	}
	dlq := &recordingWriter{}
	c := &Consumer{dlqWriter: dlq, dlqTopic: "events.dlq", handlers: handlers, workerCount: 1}

	body, _ := json.Marshal(Envelope{CorrelationID: "c1", Kind: KindEntityExtraction, UserID: "alice"})
	c.process(context.Background(), kafka.Message{Value: body})

	assert.Equal(t, 2, calls)
	assert.Empty(t, dlq.msgs, "should not reach DLQ once the handler succeeds")
}

func TestConsumer_Process_RoutesToDLQAfterExhaustingRetries(t *testing.T) {
	handlers := HandlerSet{
		KindEntityExtraction: func(ctx context.Context, env Envelope) error {
			return errors.New("always fails")
		},
	}
	dlq := &recordingWriter{}
	c := &Consumer{dlqWriter: dlq, dlqTopic: "events.dlq", handlers: handlers, workerCount: 1}

	body, _ := json.Marshal(Envelope{CorrelationID: "c1", Kind: KindEntityExtraction, UserID: "alice"})
	c.process(context.Background(), kafka.Message{Value: body})

	require.Len(t, dlq.msgs, 1)
	var fail FailureEnvelope
	require.NoError(t, json.Unmarshal(dlq.msgs[0].Value, &fail))
	assert.Equal(t, maxAttempts, fail.Attempts)
}

func TestConsumer_Process_DropsUnregisteredKindWithoutDLQ(t *testing.T) {
	dlq := &recordingWriter{}
	c := &Consumer{dlqWriter: dlq, dlqTopic: "events.dlq", handlers: HandlerSet{}, workerCount: 1}

	body, _ := json.Marshal(Envelope{CorrelationID: "c1", Kind: KindSatisfactionAggregate})
	c.process(context.Background(), kafka.Message{Value: body})

	assert.Empty(t, dlq.msgs)
}
