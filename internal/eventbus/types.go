// Package eventbus fans work out of the request path. The chat pipeline
// publishes an entity_extraction event at the end of a chat turn, and that is
// the only kind with a registered handler; episode-close summarization and
// satisfaction recording run synchronously in their own packages, and the
// other Kind values are not published.
package eventbus

import "time"

// Kind names one asynchronous job this core defers off the request path.
type Kind string

const (
	KindEpisodeClosed        Kind = "episode_closed"
	KindEntityExtraction     Kind = "entity_extraction"
	KindSatisfactionAggregate Kind = "satisfaction_aggregate"
)

// Envelope is the wire shape for every message on the bus.
type Envelope struct {
	CorrelationID string         `json:"correlation_id"`
	Kind          Kind           `json:"kind"`
	UserID        string         `json:"user_id"`
	Payload       map[string]any `json:"payload,omitempty"`
	PublishedAt   time.Time      `json:"published_at"`
}

// FailureEnvelope is what a handler publishes to the DLQ topic after
// exhausting retries.
type FailureEnvelope struct {
	CorrelationID string `json:"correlation_id"`
	Kind          Kind   `json:"kind"`
	Error         string `json:"error"`
	Attempts      int    `json:"attempts"`
}
