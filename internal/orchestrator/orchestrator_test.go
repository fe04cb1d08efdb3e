package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
	"github.com/zoe-ai/zoe-core/internal/experts"
	"github.com/zoe-ai/zoe-core/internal/llm"
)

// fakeExpert is a minimal experts.Expert + experts.Compensable test double.
type fakeExpert struct {
	variant      experts.Variant
	confidence   float64
	mutates      bool
	fail         bool
	compensated  *bool
	compensateMu *sync.Mutex
	delay        bool
}

func (f *fakeExpert) Variant() experts.Variant { return f.variant }
func (f *fakeExpert) Mutates() bool            { return f.mutates }

func (f *fakeExpert) CanHandle(ctx context.Context, query string, ectx experts.Context) (float64, error) {
	return f.confidence, nil
}

func (f *fakeExpert) Execute(ctx context.Context, query string, ectx experts.Context) (experts.Result, error) {
	if f.fail {
		return experts.Result{Success: false, ErrorKind: coreerr.KindFatal}, nil
	}
	return experts.Result{Success: true, Content: "ok:" + string(f.variant), Artifacts: map[string]any{"variant": string(f.variant)}}, nil
}

func (f *fakeExpert) Compensate(ctx context.Context, artifact map[string]any) error {
	f.compensateMu.Lock()
	defer f.compensateMu.Unlock()
	*f.compensated = true
	return nil
}

func newFakeExpert(v experts.Variant, confidence float64, mutates, fail bool) *fakeExpert {
	compensated := false
	return &fakeExpert{variant: v, confidence: confidence, mutates: mutates, fail: fail, compensated: &compensated, compensateMu: &sync.Mutex{}}
}

// fakeProvider is a deterministic llm.Provider test double.
type fakeProvider struct {
	response string
	err      error
}

func (p *fakeProvider) Complete(ctx context.Context, req llm.CompleteRequest) (llm.CompleteResponse, error) {
	if p.err != nil {
		return llm.CompleteResponse{}, p.err
	}
	return llm.CompleteResponse{Content: p.response}, nil
}

func (p *fakeProvider) Stream(ctx context.Context, req llm.CompleteRequest, h llm.StreamHandler) error {
	if p.err != nil {
		h.OnDone(p.err)
		return p.err
	}
	h.OnDelta(p.response)
	h.OnDone(nil)
	return nil
}

func TestAnalyzeIntent_ParsesValidJSONPlan(t *testing.T) {
	provider := &fakeProvider{response: `{"tasks":[{"id":"t1","expert":"lists","goal":"add milk","inputs":{},"depends_on":[]}],"final_style":"brief"}`}
	plan := AnalyzeIntent(context.Background(), provider, "add milk to my list")
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, experts.VariantLists, plan.Tasks[0].Expert)
}

func TestAnalyzeIntent_FallsBackToKeywordsOnMalformedJSON(t *testing.T) {
	provider := &fakeProvider{response: "not json at all, sorry"}
	plan := AnalyzeIntent(context.Background(), provider, "remind me to call mom")
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, experts.VariantReminder, plan.Tasks[0].Expert)
}

func TestAnalyzeIntent_NilProviderUsesKeywordFallback(t *testing.T) {
	plan := AnalyzeIntent(context.Background(), nil, "what's the weather like")
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, experts.VariantWeather, plan.Tasks[0].Expert)
}

func TestAnalyzeIntent_NoKeywordMatchFallsBackToMemory(t *testing.T) {
	plan := AnalyzeIntent(context.Background(), nil, "xyzzy plugh")
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, experts.VariantMemory, plan.Tasks[0].Expert)
}

// TestAnalyzeIntent_KeywordFallbackDecomposesMultipleRoutes covers spec §8
// scenario 3: the keyword heuristic must collect every matching route into
// its own task rather than stopping at the first match, so a request that
// touches two experts decomposes into two concurrent tasks.
func TestAnalyzeIntent_KeywordFallbackDecomposesMultipleRoutes(t *testing.T) {
	plan := AnalyzeIntent(context.Background(), nil, "Schedule a team meeting tomorrow at 2pm and add it to my tasks list.")
	require.Len(t, plan.Tasks, 2)
	gotExperts := []experts.Variant{plan.Tasks[0].Expert, plan.Tasks[1].Expert}
	assert.ElementsMatch(t, []experts.Variant{experts.VariantCalendar, experts.VariantLists}, gotExperts)
	assert.Empty(t, plan.Tasks[0].DependsOn)
	assert.Empty(t, plan.Tasks[1].DependsOn)
}

func TestOrchestrator_ConfidenceGate_ShortCircuitsToDirectExecution(t *testing.T) {
	reg := experts.NewRegistry(nil)
	reg.Register(newFakeExpert(experts.VariantLists, 0.95, true, false))
	reg.Register(newFakeExpert(experts.VariantCalendar, 0.1, true, false))

	orch := New(reg, &fakeProvider{response: "should not be used for planning"})
	outcome := orch.Run(context.Background(), "alice", "add milk to my list", nil)

	require.Len(t, outcome.Plan.Tasks, 1)
	assert.Equal(t, experts.VariantLists, outcome.Plan.Tasks[0].Expert)
	assert.False(t, outcome.RolledBack)
}

func TestDispatcher_Run_RunsAllReadyTasks(t *testing.T) {
	reg := experts.NewRegistry(nil)
	reg.Register(newFakeExpert(experts.VariantLists, 0, false, false))
	reg.Register(newFakeExpert(experts.VariantCalendar, 0, false, false))

	plan := Plan{Tasks: []Task{
		{ID: "b", Expert: experts.VariantCalendar, Goal: "g2"},
		{ID: "a", Expert: experts.VariantLists, Goal: "g1"},
	}}
	d := NewDispatcher(reg)
	outcomes := d.Run(context.Background(), plan, experts.Context{UserID: "alice"})

	require.Len(t, outcomes, 2)
	ids := []string{outcomes[0].Task.ID, outcomes[1].Task.ID}
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "b"}, ids)
	for _, o := range outcomes {
		assert.True(t, o.Result.Success)
	}
}

func TestDispatcher_Run_RespectsDependsOn(t *testing.T) {
	reg := experts.NewRegistry(nil)
	reg.Register(newFakeExpert(experts.VariantLists, 0, false, false))
	reg.Register(newFakeExpert(experts.VariantCalendar, 0, false, false))

	plan := Plan{Tasks: []Task{
		{ID: "t1", Expert: experts.VariantLists, Goal: "first"},
		{ID: "t2", Expert: experts.VariantCalendar, Goal: "second", DependsOn: []string{"t1"}},
	}}
	d := NewDispatcher(reg)
	outcomes := d.Run(context.Background(), plan, experts.Context{UserID: "alice"})

	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Result.Success)
	assert.True(t, outcomes[1].Result.Success)
}

func TestOrchestrator_Run_RollsBackSuccessfulMutationsOnSiblingFailure(t *testing.T) {
	reg := experts.NewRegistry(nil)
	successExpert := newFakeExpert(experts.VariantLists, 0, true, false)
	failExpert := newFakeExpert(experts.VariantCalendar, 0, true, true)
	reg.Register(successExpert)
	reg.Register(failExpert)

	plan := Plan{Tasks: []Task{
		{ID: "t1", Expert: experts.VariantLists, Goal: "add milk"},
		{ID: "t2", Expert: experts.VariantCalendar, Goal: "schedule meeting"},
	}}

	orch := New(reg, &fakeProvider{response: "done"})
	outcome := orch.runPlan(context.Background(), "alice", "add milk and schedule a meeting", plan, nil)

	assert.True(t, outcome.RolledBack)
	assert.True(t, *successExpert.compensated, "the successful mutating expert should have been compensated")
}

func TestOrchestrator_Run_NoRollbackWhenNoMutationSucceeded(t *testing.T) {
	reg := experts.NewRegistry(nil)
	failExpert := newFakeExpert(experts.VariantCalendar, 0, true, true)
	reg.Register(failExpert)

	plan := Plan{Tasks: []Task{{ID: "t1", Expert: experts.VariantCalendar, Goal: "schedule meeting"}}}
	orch := New(reg, &fakeProvider{response: "done"})
	outcome := orch.runPlan(context.Background(), "alice", "schedule a meeting", plan, nil)

	assert.False(t, outcome.RolledBack)
}

func TestSynthesize_DegradesToRawBulletsWhenProviderErrors(t *testing.T) {
	outcomes := []TaskOutcome{
		{Task: Task{ID: "t1", Expert: experts.VariantLists}, Result: experts.Result{Success: true, Content: "added milk"}},
	}
	text, err := Synthesize(context.Background(), &fakeProvider{err: errors.New("backend down")}, "add milk", outcomes, nil, "brief")
	require.NoError(t, err)
	assert.Contains(t, text, "added milk")
}

func TestSynthesize_NilProviderReturnsBulletSummary(t *testing.T) {
	outcomes := []TaskOutcome{
		{Task: Task{ID: "t1", Expert: experts.VariantLists}, Result: experts.Result{Success: true, Content: "added milk"}},
	}
	text, err := Synthesize(context.Background(), nil, "add milk", outcomes, nil, "brief")
	require.NoError(t, err)
	assert.Contains(t, text, "added milk")
}
