// Package config loads the core's runtime configuration from environment
// variables (plus an optional .env file), following the same env-first
// pattern the rest of the stack uses for its service configuration.
package config

import "time"

// ObsConfig controls OpenTelemetry tracing/metrics export.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
	Insecure       bool
}

// RedisConfig describes the Redis backing used by the context cache.
type RedisConfig struct {
	Enabled bool
	Addr    string
	Pass    string
	DB      int
}

// PostgresConfig describes the relational store backing episodes, turns,
// entities, facts, relationships and sessions.
type PostgresConfig struct {
	DSN string
}

// VectorConfig describes the pluggable vector-store backend used by the
// memory store's semantic search.
type VectorConfig struct {
	Backend    string // "qdrant" | "memory"
	DSN        string
	Collection string
	Dimensions int
	Metric     string // cosine|l2|ip
}

// ClickHouseConfig backs the satisfaction-metrics rolling aggregates.
type ClickHouseConfig struct {
	Enabled  bool
	DSN      string
	Database string
}

// KafkaConfig describes the async event bus used to fan entity-extraction
// work out of the request path.
type KafkaConfig struct {
	Brokers       string
	EventsTopic   string
	DLQTopic      string
	ConsumerGroup string
}

// InferenceConfig describes the local LLM inference backend.
type InferenceConfig struct {
	URL          string
	DefaultModel string
	Timeout      time.Duration
}

// EpisodeTimeouts holds the per-context-type idle timeout, in minutes.
type EpisodeTimeouts struct {
	Chat        int
	Planning    int
	Development int
	General     int
}

// ExpertAllowList enumerates the collaborator endpoints a single expert
// variant may call, keyed by expert name.
type ExpertAllowList map[string][]string

// Config is the fully resolved runtime configuration for the core.
type Config struct {
	Host string
	Port int

	LogPath  string
	LogLevel string

	Obs ObsConfig

	Inference InferenceConfig

	Postgres   PostgresConfig
	Redis      RedisConfig
	Vector     VectorConfig
	ClickHouse ClickHouseConfig
	Kafka      KafkaConfig

	MemoryEmbeddingDim       int
	MemoryDecayHalfLifeDays  float64
	EpisodeTimeoutsMin       EpisodeTimeouts
	CacheTTLSeconds          int
	CacheMaxEntries          int
	RequestSoftBudgetSeconds int
	ExpertTimeoutSeconds     int
	IntentAnalysisTimeoutMs  int

	ExpertAllowLists ExpertAllowList

	// AuthURL is the session-resolution collaborator endpoint (§6): GET
	// {AuthURL}/session/{id} -> {user_id}. Empty disables resolution and
	// every request runs as "default".
	AuthURL string
}
