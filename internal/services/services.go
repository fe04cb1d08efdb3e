// Package services wires every component the core depends on into a single
// process-wide container with an explicit startup/shutdown lifecycle: no
// package here performs I/O at import time, and every dependency is
// constructed and handed to its consumer explicitly (spec §9 design notes).
package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoe-ai/zoe-core/internal/cache"
	"github.com/zoe-ai/zoe-core/internal/chat"
	"github.com/zoe-ai/zoe-core/internal/config"
	"github.com/zoe-ai/zoe-core/internal/eventbus"
	"github.com/zoe-ai/zoe-core/internal/experts"
	"github.com/zoe-ai/zoe-core/internal/httpapi"
	"github.com/zoe-ai/zoe-core/internal/llm"
	"github.com/zoe-ai/zoe-core/internal/memory"
	"github.com/zoe-ai/zoe-core/internal/observability"
	"github.com/zoe-ai/zoe-core/internal/orchestrator"
	"github.com/zoe-ai/zoe-core/internal/persistence"
	"github.com/zoe-ai/zoe-core/internal/persistence/databases"
	"github.com/zoe-ai/zoe-core/internal/satisfaction"
	"github.com/zoe-ai/zoe-core/internal/temporal"
)

// Services is the fully wired conversation core: every store, the expert
// registry, the orchestrator, the chat pipeline, and the HTTP surfaces that
// sit in front of them.
type Services struct {
	cfg config.Config

	pool          *pgxpool.Pool
	redis         *cache.RedisBacking
	satisfact     *satisfaction.Store
	eventsPub     *eventbus.Publisher
	eventsCons    *eventbus.Consumer
	collaborators *databases.CollaboratorStore

	Memories *memory.Store
	Episodes *temporal.Store
	Cache    *cache.Cache
	Registry *experts.Registry
	Orch     *orchestrator.Orchestrator
	Pipeline *chat.Pipeline
	Sessions persistence.SessionStore

	ChatHandlers          *chat.Handlers
	SatisfactionHandlers  *satisfaction.Handlers
	TemporalHandlers      *httpapi.TemporalHandlers
	MemoryHandlers        *httpapi.MemoryHandlers
	OrchestrationHandlers *httpapi.OrchestrationHandlers
}

// New wires every component from cfg. It connects to Postgres and (when
// configured) Redis, Qdrant, ClickHouse and Kafka, and creates the tables
// each store owns if they do not exist yet; it performs no other I/O.
func New(ctx context.Context, cfg config.Config) (*Services, error) {
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN/DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Services{cfg: cfg, pool: pool}
	if err := s.initStores(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.initDomain(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.initHandlers()
	return s, nil
}

func (s *Services) initStores(ctx context.Context) error {
	cfg := s.cfg

	memRepo := memory.NewPostgresRepository(s.pool)
	if err := memRepo.Init(ctx); err != nil {
		return fmt.Errorf("init memory schema: %w", err)
	}
	vectors, err := newVectorStore(cfg.Vector)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	embedder := memory.NewHashEmbedder(cfg.MemoryEmbeddingDim)
	s.Memories = memory.NewStore(memRepo, vectors, embedder, cfg.MemoryDecayHalfLifeDays)

	tempRepo := temporal.NewPostgresRepository(s.pool)
	if err := tempRepo.Init(ctx); err != nil {
		return fmt.Errorf("init temporal schema: %w", err)
	}

	sessionStore := databases.NewPostgresSessionStore(s.pool)
	if err := sessionStore.Init(ctx); err != nil {
		return fmt.Errorf("init sessions schema: %w", err)
	}
	s.Sessions = sessionStore

	collab := databases.NewCollaboratorStore(s.pool)
	if err := collab.Init(ctx); err != nil {
		return fmt.Errorf("init collaborator schema: %w", err)
	}

	var backing cache.Backing
	if cfg.Redis.Enabled {
		redisBacking, err := cache.NewRedisBacking(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB)
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("context cache redis backing unavailable, running process-local only")
		} else {
			s.redis = redisBacking
			backing = redisBacking
		}
	}

	if cfg.ClickHouse.Enabled {
		satStore, err := satisfaction.NewStore(ctx, cfg.ClickHouse.DSN, cfg.ClickHouse.Database)
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("satisfaction telemetry unavailable, continuing without it")
		} else {
			s.satisfact = satStore
		}
	}

	provider := newProvider(cfg.Inference)

	s.Episodes = temporal.NewStore(tempRepo, s.Memories, provider)
	summarizer := cache.NewSummarizer(provider, 1000)
	s.Cache = cache.New(cfg.CacheMaxEntries, summarizer, backing)

	s.collaborators = collab
	return nil
}

func (s *Services) initDomain(ctx context.Context) error {
	cfg := s.cfg
	provider := newProvider(cfg.Inference)

	allowList := make(map[experts.Variant][]string, len(cfg.ExpertAllowLists))
	for name, eps := range cfg.ExpertAllowLists {
		allowList[experts.Variant(name)] = eps
	}
	s.Registry = experts.NewRegistry(allowList)

	s.Registry.Register(experts.NewListsExpert(provider, s.collaborators))
	s.Registry.Register(experts.NewCalendarExpert(s.collaborators))
	s.Registry.Register(experts.NewReminderExpert(s.collaborators))
	s.Registry.Register(experts.NewJournalExpert(s.collaborators))
	s.Registry.Register(experts.NewMemoryExpert(s.Memories))
	s.Registry.Register(experts.NewPeopleExpert(s.Memories))
	s.Registry.Register(experts.NewPlanningExpert(provider))
	s.Registry.Register(experts.NewDevelopmentExpert(provider))

	endpointClient := experts.NewEndpointClient(observability.NewHTTPClient(nil))
	if eps := cfg.ExpertAllowLists["weather"]; len(eps) > 0 {
		s.Registry.Register(experts.NewWeatherExpert(endpointClient, eps[0]))
	}
	if eps := cfg.ExpertAllowLists["home_automation"]; len(eps) > 0 {
		s.Registry.Register(experts.NewHomeAutomationExpert(endpointClient, eps[0]))
	}

	s.Orch = orchestrator.New(s.Registry, provider)

	var resolver chat.SessionResolver
	if cfg.AuthURL != "" {
		resolver = chat.NewHTTPSessionResolver(cfg.AuthURL, observability.NewHTTPClient(nil))
	} else {
		resolver = chat.StaticResolver{UserID: chat.DefaultUserID}
	}

	if cfg.Kafka.Brokers != "" {
		writer := eventbus.NewWriter([]string{cfg.Kafka.Brokers}, cfg.Kafka.EventsTopic)
		s.eventsPub = eventbus.NewPublisher(writer)

		dlqWriter := eventbus.NewWriter([]string{cfg.Kafka.Brokers}, cfg.Kafka.DLQTopic)
		handlers := eventbus.HandlerSet{
			eventbus.KindEntityExtraction: s.handleEntityExtraction,
		}
		s.eventsCons = eventbus.NewConsumer([]string{cfg.Kafka.Brokers}, cfg.Kafka.ConsumerGroup, cfg.Kafka.EventsTopic, dlqWriter, handlers, 4)
	}

	s.Pipeline = &chat.Pipeline{
		Episodes:     s.Episodes,
		Memories:     s.Memories,
		Cache:        s.Cache,
		Orch:         s.Orch,
		Resolver:     resolver,
		Calendar:     s.collaborators,
		Lists:        s.collaborators,
		Satisfaction: s.satisfact,
		Events:       s.eventsPub,
		Model:        cfg.Inference.DefaultModel,
	}
	return nil
}

func (s *Services) initHandlers() {
	s.ChatHandlers = &chat.Handlers{Pipeline: s.Pipeline, Sessions: s.Sessions}
	s.TemporalHandlers = &httpapi.TemporalHandlers{Store: s.Episodes}
	s.MemoryHandlers = &httpapi.MemoryHandlers{Store: s.Memories}
	s.OrchestrationHandlers = &httpapi.OrchestrationHandlers{Orchestrator: s.Orch, Registry: s.Registry}
	if s.satisfact != nil {
		s.SatisfactionHandlers = &satisfaction.Handlers{Store: s.satisfact}
	}
}

// handleEntityExtraction is the async counterpart to the chat pipeline's
// synchronous memory writes: it stores the turn's utterance as one
// low-importance fact off the request path (spec §4.1, §9's async fan-out
// note). No entities are extracted or upserted.
func (s *Services) handleEntityExtraction(ctx context.Context, env eventbus.Envelope) error {
	utterance, _ := env.Payload["utterance"].(string)
	if utterance == "" {
		return nil
	}
	_, err := s.Memories.UpsertFact(ctx, env.UserID, utterance, "entity_extraction", nil, 0.3)
	return err
}

// Run starts the background event consumer, if one is configured, and
// blocks until ctx is canceled.
func (s *Services) Run(ctx context.Context) error {
	if s.eventsCons == nil {
		<-ctx.Done()
		return nil
	}
	return s.eventsCons.Run(ctx)
}

// Close releases every held connection. Safe to call once, after Run (or
// instead of it, if the consumer was never started) returns.
func (s *Services) Close(ctx context.Context) error {
	var first error
	if s.satisfact != nil {
		if err := s.satisfact.Close(); err != nil && first == nil {
			first = err
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil && first == nil {
			first = err
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return first
}

func newVectorStore(cfg config.VectorConfig) (memory.VectorStore, error) {
	switch cfg.Backend {
	case "qdrant":
		return memory.NewQdrantStore(cfg.DSN, cfg.Collection, cfg.Dimensions, cfg.Metric)
	default:
		return memory.NewInMemoryVectorStore(cfg.Dimensions), nil
	}
}

func newProvider(cfg config.InferenceConfig) llm.Provider {
	if cfg.URL == "" {
		return llm.OfflineProvider{}
	}
	client := observability.NewHTTPClient(&http.Client{Timeout: cfg.Timeout})
	return llm.NewHTTPProvider(cfg.URL, client)
}
