package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/zoe-ai/zoe-core/internal/cache"
	"github.com/zoe-ai/zoe-core/internal/eventbus"
	"github.com/zoe-ai/zoe-core/internal/memory"
	"github.com/zoe-ai/zoe-core/internal/observability"
	"github.com/zoe-ai/zoe-core/internal/orchestrator"
	"github.com/zoe-ai/zoe-core/internal/satisfaction"
	"github.com/zoe-ai/zoe-core/internal/temporal"
)

// RequestSoftBudget is the whole-request timeout (spec §5): past this, the
// pipeline emits a terminal timeout error and a best-effort session_end.
const RequestSoftBudget = 60 * time.Second

// Request is the decoded body of POST /api/chat (spec §6).
type Request struct {
	Message   string            `json:"message"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Stream    bool              `json:"stream"`
	Context   map[string]string `json:"context,omitempty"`
}

// Response is the synchronous (non-streamed) reply shape (spec §6).
type Response struct {
	Response   string              `json:"response"`
	EpisodeID  string              `json:"episode_id"`
	ExpertUsed string              `json:"expert_used"`
	Model      string              `json:"model"`
	Actions    []ActionResultData  `json:"actions"`
	LatencyMs  int64               `json:"latency_ms"`
}

// Pipeline wires episode memory, enrichment, orchestration and telemetry
// into the single end-to-end chat handler (spec §4.6).
type Pipeline struct {
	Episodes *temporal.Store
	Memories *memory.Store
	Cache    *cache.Cache
	Orch     *orchestrator.Orchestrator
	Resolver SessionResolver

	Calendar CalendarWindow // optional; nil skips calendar enrichment
	Lists    ListsSnapshot  // optional; nil skips lists enrichment

	Satisfaction *satisfaction.Store  // optional; nil disables telemetry
	Events       *eventbus.Publisher  // optional; nil disables async fan-out

	Model string // model name surfaced in agent_state_delta / the response
}

// Run executes the full pipeline for one request, pushing every protocol
// event to emit as it becomes available. It never panics the caller: any
// unexpected failure becomes a terminal error event (spec §7: "the chat
// pipeline never crashes a stream mid-flight").
func (p *Pipeline) Run(ctx context.Context, req Request, emit func(Event)) (resp Response) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, RequestSoftBudget)
	defer cancel()

	userID := p.resolveUserID(ctx, req)
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	emit(Event{Type: EventSessionStart, Data: SessionStartData{SessionID: sessionID}})

	resp = Response{Model: p.Model}
	finalState := AgentState{Model: p.Model, Status: "ok"}

	defer func() {
		if r := recover(); r != nil {
			observability.LoggerWithTrace(ctx).Error().Interface("panic", r).Msg("chat pipeline panic recovered")
			emit(Event{Type: EventError, Data: ErrorData{Code: "fatal", Message: "internal error"}})
			finalState.Status = "error"
		}
		resp.LatencyMs = time.Since(start).Milliseconds()
		emit(Event{Type: EventSessionEnd, Data: SessionEndData{SessionID: sessionID, FinalState: finalState}})
	}()

	episode, err := p.Episodes.GetOrCreateEpisode(ctx, userID, temporal.ContextChat)
	if err != nil {
		emit(Event{Type: EventError, Data: ErrorData{Code: "fatal", Message: "could not acquire episode"}})
		finalState.Status = "error"
		return resp
	}
	resp.EpisodeID = episode.ID

	if _, err := p.Episodes.AppendTurn(ctx, episode.ID, temporal.RoleUser, req.Message, nil); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("append user turn failed")
	}

	memories, recentTurns := p.gatherEnrichment(ctx, userID, episode.ID, req.Message)

	emit(Event{Type: EventAgentStateDelta, Data: AgentStateDeltaData{State: AgentState{
		Context: struct {
			Events   int `json:"events"`
			Memories int `json:"memories"`
		}{Events: len(recentTurns), Memories: len(memories)},
		Routing: "pending",
		Model:   p.Model,
		Status:  "gathering_context",
	}}})

	if ctx.Err() != nil {
		emit(Event{Type: EventError, Data: ErrorData{Code: "timeout", Message: "request soft budget exceeded"}})
		finalState.Status = "timeout"
		return resp
	}

	outcome := p.Orch.Run(ctx, userID, req.Message, memories)
	resp.ExpertUsed = primaryExpert(outcome)

	for _, to := range outcome.TaskOutcomes {
		digest := argsDigest(to.Task.Goal)
		emit(Event{Type: EventAction, Data: ActionData{Name: string(to.Task.Expert), ArgsDigest: digest}})
		success := to.Err == nil && to.Result.Success
		summary := to.Result.Content
		if !success && to.Err != nil {
			summary = to.Err.Error()
		}
		ard := ActionResultData{Name: string(to.Task.Expert), Success: success, Summary: summary}
		resp.Actions = append(resp.Actions, ard)
		emit(Event{Type: EventActionResult, Data: ard})
	}

	if outcome.FinalMessage != "" {
		emit(Event{Type: EventMessageDelta, Data: MessageDeltaData{Delta: outcome.FinalMessage}})
	}
	resp.Response = outcome.FinalMessage

	routing := resp.ExpertUsed
	if outcome.RolledBack {
		routing += " (rolled back)"
		finalState.Status = "partial_failure"
	}
	finalState.Routing = routing
	finalState.Context.Events = len(recentTurns)
	finalState.Context.Memories = len(memories)

	toolCalls := toolCallsFromOutcomes(outcome)
	if _, err := p.Episodes.AppendTurn(ctx, episode.ID, temporal.RoleAssistant, outcome.FinalMessage, toolCalls); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("append assistant turn failed")
	}

	p.recordSatisfaction(ctx, userID, episode.ID, start, outcome)
	p.publishEntityExtraction(ctx, userID, episode.ID, req.Message)

	return resp
}

func (p *Pipeline) resolveUserID(ctx context.Context, req Request) string {
	if req.UserID != "" {
		return req.UserID
	}
	if p.Resolver != nil {
		return p.Resolver.Resolve(ctx, req.SessionID)
	}
	return DefaultUserID
}

// gatherEnrichment runs the memory search and today's-turns lookup
// concurrently; neither goes through the context cache. While they run, the
// calendar window and lists snapshot are fetched through the context cache,
// one after the other; their text only warms the cache and is not returned.
func (p *Pipeline) gatherEnrichment(ctx context.Context, userID, episodeID, utterance string) ([]memory.SearchHit, []temporal.Turn) {
	type memResult struct {
		hits []memory.SearchHit
	}
	memCh := make(chan memResult, 1)
	go func() {
		hits, err := p.Memories.Search(ctx, userID, utterance, memory.SearchOptions{TopK: 5, MinSimilarity: 0.2})
		if err != nil {
			hits = nil
		}
		memCh <- memResult{hits: hits}
	}()

	turnsCh := make(chan []temporal.Turn, 1)
	go func() {
		_, turns, err := p.Episodes.TemporalSearch(ctx, userID, utterance, temporal.RangeToday)
		if err != nil {
			turns = nil
		}
		turnsCh <- turns
	}()

	if p.Cache != nil && p.Calendar != nil {
		fp := cache.Fingerprint(userID, "calendar_window", nil)
		_, _ = p.Cache.FetchOrCompute(ctx, fp, cache.SourceCalendar, func(ctx context.Context) (string, error) {
			return p.Calendar.UpcomingWindow(ctx, userID)
		})
	}
	if p.Cache != nil && p.Lists != nil {
		fp := cache.Fingerprint(userID, "lists_snapshot", nil)
		_, _ = p.Cache.FetchOrCompute(ctx, fp, cache.SourceLists, func(ctx context.Context) (string, error) {
			return p.Lists.Snapshot(ctx, userID)
		})
	}

	mem := <-memCh
	turns := <-turnsCh
	return mem.hits, turns
}

func (p *Pipeline) recordSatisfaction(ctx context.Context, userID, episodeID string, start time.Time, outcome orchestrator.Outcome) {
	if p.Satisfaction == nil {
		return
	}
	completed := false
	for _, to := range outcome.TaskOutcomes {
		if to.Result.Success {
			completed = true
			break
		}
	}
	sample := satisfaction.InteractionSample{
		UserID:        userID,
		TurnID:        episodeID,
		ResponseTime:  time.Since(start),
		TaskCompleted: completed,
	}
	if _, err := p.Satisfaction.RecordInteraction(ctx, sample); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("record satisfaction sample failed")
	}
}

func (p *Pipeline) publishEntityExtraction(ctx context.Context, userID, episodeID, utterance string) {
	if p.Events == nil {
		return
	}
	env := eventbus.Envelope{
		CorrelationID: uuid.NewString(),
		Kind:          eventbus.KindEntityExtraction,
		UserID:        userID,
		Payload:       map[string]any{"episode_id": episodeID, "utterance": utterance},
		PublishedAt:   time.Now(),
	}
	if err := p.Events.Publish(ctx, env); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("publish entity extraction event failed")
	}
}

func primaryExpert(outcome orchestrator.Outcome) string {
	if len(outcome.Plan.Tasks) == 0 {
		return ""
	}
	return string(outcome.Plan.Tasks[0].Expert)
}

func toolCallsFromOutcomes(outcome orchestrator.Outcome) []temporal.ToolCall {
	var calls []temporal.ToolCall
	for _, to := range outcome.TaskOutcomes {
		outcomeStr := "success"
		if to.Err != nil || !to.Result.Success {
			outcomeStr = "failure"
		}
		calls = append(calls, temporal.ToolCall{
			Name:       string(to.Task.Expert),
			ArgsDigest: argsDigest(to.Task.Goal),
			Outcome:    outcomeStr,
		})
	}
	return calls
}

func argsDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
