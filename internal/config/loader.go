package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables (optionally from a
// .env file, which overrides pre-existing OS environment so local/dev runs
// are deterministic). Every environment variable named in spec §6 is
// recognized here; sensible defaults are applied where the spec gives one.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.Host = firstNonEmpty(getenv("HOST"), "0.0.0.0")
	cfg.Port = getenvInt("PORT", 8080)

	cfg.LogPath = getenv("LOG_PATH")
	cfg.LogLevel = firstNonEmpty(getenv("LOG_LEVEL"), "info")

	cfg.Obs = ObsConfig{
		ServiceName:    firstNonEmpty(getenv("OTEL_SERVICE_NAME"), "zoe-core"),
		ServiceVersion: getenv("SERVICE_VERSION"),
		Environment:    firstNonEmpty(getenv("ENVIRONMENT"), "development"),
		OTLP:           getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:       getenvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	cfg.Inference = InferenceConfig{
		URL:          getenv("INFERENCE_URL"),
		DefaultModel: firstNonEmpty(getenv("INFERENCE_DEFAULT_MODEL"), "local-default"),
		Timeout:      time.Duration(getenvInt("INFERENCE_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	cfg.Postgres = PostgresConfig{
		DSN: firstNonEmpty(getenv("DATABASE_URL"), getenv("POSTGRES_DSN")),
	}

	cfg.Redis = RedisConfig{
		Enabled: getenv("REDIS_ADDR") != "",
		Addr:    getenv("REDIS_ADDR"),
		Pass:    getenv("REDIS_PASSWORD"),
		DB:      getenvInt("REDIS_DB", 0),
	}

	cfg.Vector = VectorConfig{
		Backend:    firstNonEmpty(strings.ToLower(getenv("VECTOR_BACKEND")), "memory"),
		DSN:        getenv("VECTOR_DSN"),
		Collection: firstNonEmpty(getenv("VECTOR_COLLECTION"), "zoe_facts"),
		Dimensions: getenvInt("MEMORY_EMBEDDING_DIM", 384),
		Metric:     firstNonEmpty(getenv("VECTOR_METRIC"), "cosine"),
	}

	cfg.ClickHouse = ClickHouseConfig{
		Enabled:  getenv("CLICKHOUSE_DSN") != "",
		DSN:      getenv("CLICKHOUSE_DSN"),
		Database: firstNonEmpty(getenv("CLICKHOUSE_DATABASE"), "zoe"),
	}

	cfg.Kafka = KafkaConfig{
		Brokers:       firstNonEmpty(getenv("KAFKA_BROKERS"), getenv("KAFKA_BOOTSTRAP_SERVERS")),
		EventsTopic:   firstNonEmpty(getenv("KAFKA_EVENTS_TOPIC"), "zoe.core.events"),
		DLQTopic:      firstNonEmpty(getenv("KAFKA_EVENTS_DLQ_TOPIC"), "zoe.core.events.dlq"),
		ConsumerGroup: firstNonEmpty(getenv("KAFKA_CONSUMER_GROUP"), "zoe-core"),
	}

	cfg.MemoryEmbeddingDim = getenvInt("MEMORY_EMBEDDING_DIM", 384)
	cfg.MemoryDecayHalfLifeDays = getenvFloat("MEMORY_DECAY_HALFLIFE_DAYS", 30)

	cfg.EpisodeTimeoutsMin = EpisodeTimeouts{
		Chat:        getenvInt("EPISODE_TIMEOUT_CHAT_MIN", 30),
		Planning:    getenvInt("EPISODE_TIMEOUT_PLANNING_MIN", 60),
		Development: getenvInt("EPISODE_TIMEOUT_DEVELOPMENT_MIN", 120),
		General:     getenvInt("EPISODE_TIMEOUT_GENERAL_MIN", 45),
	}

	cfg.CacheTTLSeconds = getenvInt("CACHE_TTL_SECONDS", 86400)
	cfg.CacheMaxEntries = getenvInt("CACHE_MAX_ENTRIES", 1000)
	cfg.RequestSoftBudgetSeconds = getenvInt("REQUEST_SOFT_BUDGET_SECONDS", 60)
	cfg.ExpertTimeoutSeconds = getenvInt("EXPERT_TIMEOUT_SECONDS", 30)
	cfg.IntentAnalysisTimeoutMs = getenvInt("INTENT_ANALYSIS_TIMEOUT_MS", 5000)

	cfg.AuthURL = getenv("AUTH_URL")

	cfg.ExpertAllowLists = loadExpertAllowLists()

	return cfg, nil
}

// loadExpertAllowLists reads EXPERT_ALLOW_<NAME>="url1,url2" pairs for the
// fixed expert variants named in spec §4.4.
func loadExpertAllowLists() ExpertAllowList {
	names := []string{
		"lists", "calendar", "memory", "people", "journal",
		"reminder", "planning", "development", "weather", "home_automation",
	}
	out := make(ExpertAllowList, len(names))
	for _, n := range names {
		key := "EXPERT_ALLOW_" + strings.ToUpper(n)
		if v := getenv(key); v != "" {
			out[n] = parseCommaSeparated(v)
		}
	}
	return out
}

func parseCommaSeparated(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func getenvInt(key string, def int) int {
	v := getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := getenv(key)
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}
