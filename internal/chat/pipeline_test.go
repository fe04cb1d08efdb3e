package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-ai/zoe-core/internal/cache"
	"github.com/zoe-ai/zoe-core/internal/coreerr"
	"github.com/zoe-ai/zoe-core/internal/experts"
	"github.com/zoe-ai/zoe-core/internal/llm"
	"github.com/zoe-ai/zoe-core/internal/memory"
	"github.com/zoe-ai/zoe-core/internal/orchestrator"
	"github.com/zoe-ai/zoe-core/internal/temporal"
)

// --- in-memory temporal.Repository fake ---

type fakeTemporalRepo struct {
	mu       sync.Mutex
	episodes map[string]temporal.Episode
	turns    map[string][]temporal.Turn
}

func newFakeTemporalRepo() *fakeTemporalRepo {
	return &fakeTemporalRepo{episodes: map[string]temporal.Episode{}, turns: map[string][]temporal.Turn{}}
}

func (r *fakeTemporalRepo) Init(ctx context.Context) error { return nil }

func (r *fakeTemporalRepo) ActiveEpisode(ctx context.Context, userID string) (temporal.Episode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.episodes {
		if e.UserID == userID && e.State == temporal.EpisodeActive {
			return e, nil
		}
	}
	return temporal.Episode{}, errNotFound
}

func (r *fakeTemporalRepo) InsertEpisode(ctx context.Context, e temporal.Episode) (temporal.Episode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	r.episodes[e.ID] = e
	return e, nil
}

func (r *fakeTemporalRepo) UpdateEpisodeActivity(ctx context.Context, id string, lastActivityAt time.Time, messageCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.episodes[id]
	if !ok {
		return errNotFound
	}
	e.LastActivityAt = lastActivityAt
	e.MessageCount = messageCount
	r.episodes[id] = e
	return nil
}

func (r *fakeTemporalRepo) CloseEpisode(ctx context.Context, id string, state temporal.EpisodeState, autoSummary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.episodes[id]
	if !ok {
		return errNotFound
	}
	e.State = state
	e.AutoSummary = autoSummary
	r.episodes[id] = e
	return nil
}

func (r *fakeTemporalRepo) GetEpisode(ctx context.Context, id string) (temporal.Episode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.episodes[id]
	if !ok {
		return temporal.Episode{}, errNotFound
	}
	return e, nil
}

func (r *fakeTemporalRepo) ExpiredEpisodes(ctx context.Context, at time.Time) ([]temporal.Episode, error) {
	return nil, nil
}

func (r *fakeTemporalRepo) AppendTurn(ctx context.Context, t temporal.Turn) (temporal.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()
	r.turns[t.EpisodeID] = append(r.turns[t.EpisodeID], t)
	return t, nil
}

func (r *fakeTemporalRepo) TurnsByEpisode(ctx context.Context, episodeID string, limit int) ([]temporal.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	turns := r.turns[episodeID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (r *fakeTemporalRepo) TurnsInRange(ctx context.Context, userID string, from, to time.Time) ([]temporal.Turn, error) {
	return nil, nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

// Is lets the stores recognize the fakes' misses as coreerr.ErrNotFound,
// the sentinel the real Postgres repositories return.
func (notFoundErr) Is(target error) bool { return target == coreerr.ErrNotFound }

var errNotFound = notFoundErr{}

// --- in-memory memory.Repository fake ---

type fakeMemoryRepo struct {
	mu    sync.Mutex
	facts map[string]memory.Fact
}

func newFakeMemoryRepo() *fakeMemoryRepo {
	return &fakeMemoryRepo{facts: map[string]memory.Fact{}}
}

func (r *fakeMemoryRepo) Init(ctx context.Context) error { return nil }

func (r *fakeMemoryRepo) UpsertFact(ctx context.Context, f memory.Fact) (memory.Fact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts[f.ID] = f
	return f, nil
}

func (r *fakeMemoryRepo) GetFact(ctx context.Context, userID, id string) (memory.Fact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.facts[id]
	if !ok {
		return memory.Fact{}, errNotFound
	}
	return f, nil
}

func (r *fakeMemoryRepo) TouchFact(ctx context.Context, userID, id string, accessedAt time.Time) error {
	return nil
}

func (r *fakeMemoryRepo) FactsByIDs(ctx context.Context, userID string, ids []string) ([]memory.Fact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []memory.Fact
	for _, id := range ids {
		if f, ok := r.facts[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeMemoryRepo) UpsertEntity(ctx context.Context, e memory.Entity) (memory.Entity, error) {
	return e, nil
}

func (r *fakeMemoryRepo) GetEntity(ctx context.Context, userID, id string) (memory.Entity, error) {
	return memory.Entity{}, errNotFound
}

func (r *fakeMemoryRepo) FindEntityByName(ctx context.Context, userID, entityType, name string) (memory.Entity, error) {
	return memory.Entity{}, errNotFound
}

func (r *fakeMemoryRepo) UpsertRelationship(ctx context.Context, rel memory.Relationship) error {
	return nil
}

func (r *fakeMemoryRepo) RelationshipsFrom(ctx context.Context, userID string, entityIDs []string) ([]memory.Relationship, error) {
	return nil, nil
}

func (r *fakeMemoryRepo) CountFacts(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.facts {
		if f.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *fakeMemoryRepo) CountEntities(ctx context.Context, userID string) (int, error) { return 0, nil }

func (r *fakeMemoryRepo) CountRelationships(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

// --- fake llm.Provider (always degrades gracefully) ---

type fakePipelineProvider struct{}

func (fakePipelineProvider) Complete(ctx context.Context, req llm.CompleteRequest) (llm.CompleteResponse, error) {
	return llm.CompleteResponse{Content: "ok"}, nil
}

func (fakePipelineProvider) Stream(ctx context.Context, req llm.CompleteRequest, h llm.StreamHandler) error {
	return nil
}

// --- fake expert, always handles with a canned reply ---

type echoExpert struct{}

func (echoExpert) Variant() experts.Variant { return experts.VariantMemory }
func (echoExpert) CanHandle(ctx context.Context, query string, ectx experts.Context) (float64, error) {
	return 0.9, nil
}
func (echoExpert) Execute(ctx context.Context, query string, ectx experts.Context) (experts.Result, error) {
	return experts.Result{Success: true, Content: "noted: " + query}, nil
}
func (echoExpert) Mutates() bool { return false }

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	memRepo := newFakeMemoryRepo()
	vecs := memory.NewInMemoryVectorStore(16)
	embedder := memory.NewHashEmbedder(16)
	memStore := memory.NewStore(memRepo, vecs, embedder, 30)

	tempRepo := newFakeTemporalRepo()
	tempStore := temporal.NewStore(tempRepo, memStore, fakePipelineProvider{})

	c := cache.New(100, nil, nil)

	registry := experts.NewRegistry(nil)
	registry.Register(echoExpert{})
	orch := orchestrator.New(registry, fakePipelineProvider{})

	return &Pipeline{
		Episodes: tempStore,
		Memories: memStore,
		Cache:    c,
		Orch:     orch,
		Resolver: StaticResolver{UserID: "u1"},
		Model:    "test-model",
	}
}

func TestPipeline_Run_EventOrderContract(t *testing.T) {
	p := newTestPipeline(t)
	var mu sync.Mutex
	var events []Event
	emit := func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	resp := p.Run(context.Background(), Request{Message: "remember this", UserID: "u1"}, emit)

	require.NotEmpty(t, events)
	assert.Equal(t, EventSessionStart, events[0].Type, "stream must lead with session_start")
	assert.Equal(t, EventSessionEnd, events[len(events)-1].Type, "stream must trail with session_end")
	assert.NotEmpty(t, resp.EpisodeID)
	assert.Contains(t, resp.Response, "noted:")
}

func TestPipeline_Run_PanicRecoveryEmitsTerminalError(t *testing.T) {
	p := newTestPipeline(t)
	p.Episodes = nil // forces a nil-pointer panic on GetOrCreateEpisode

	var mu sync.Mutex
	var events []Event
	emit := func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	assert.NotPanics(t, func() {
		p.Run(context.Background(), Request{Message: "hi", UserID: "u1"}, emit)
	})

	require.NotEmpty(t, events)
	assert.Equal(t, EventSessionStart, events[0].Type)
	assert.Equal(t, EventSessionEnd, events[len(events)-1].Type)
	foundError := false
	for _, e := range events {
		if e.Type == EventError {
			foundError = true
		}
	}
	assert.True(t, foundError, "a recovered panic must surface as a terminal error event")
}

func TestCollectingEmitter_AccumulatesMessageDeltas(t *testing.T) {
	ce := &collectingEmitter{}
	ce.Emit(Event{Type: EventMessageDelta, Data: MessageDeltaData{Delta: "hello "}})
	ce.Emit(Event{Type: EventMessageDelta, Data: MessageDeltaData{Delta: "world"}})
	assert.Equal(t, "hello world", ce.String())
}

func TestStreamWriter_DropsAgentStateDeltaUnderBackpressure(t *testing.T) {
	sw := &streamWriter{notify: make(chan struct{}, 1)}
	for i := 0; i < streamQueueSize; i++ {
		sw.Emit(Event{Type: EventAgentStateDelta})
	}
	assert.Len(t, sw.queue, streamQueueSize)

	// Queue is full of droppable events; a message_delta must displace one.
	sw.Emit(Event{Type: EventMessageDelta, Data: MessageDeltaData{Delta: "x"}})
	assert.Len(t, sw.queue, streamQueueSize)
	foundDelta := false
	for _, e := range sw.queue {
		if e.Type == EventMessageDelta {
			foundDelta = true
		}
	}
	assert.True(t, foundDelta, "message_delta must never be dropped")

	// A further agent_state_delta with a full, non-droppable-free queue is
	// simply dropped rather than evicting the message_delta.
	sw.Emit(Event{Type: EventAgentStateDelta})
	assert.Len(t, sw.queue, streamQueueSize)
}
