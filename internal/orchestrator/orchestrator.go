package orchestrator

import (
	"context"

	"github.com/zoe-ai/zoe-core/internal/experts"
	"github.com/zoe-ai/zoe-core/internal/llm"
	"github.com/zoe-ai/zoe-core/internal/memory"
)

// ConfidenceGateThreshold is the can_handle score at or above which a single
// matching expert short-circuits straight to execution, skipping intent
// analysis's plan (spec §4.5 step 2).
const ConfidenceGateThreshold = 0.8

// Orchestrator turns a user utterance into a synthesized reply by analyzing
// intent, dispatching the resulting plan across the expert registry, and
// synthesizing the final message. It never panics: every stage has a
// keyword- or content-based fallback so a degraded inference backend still
// produces a usable reply (spec §4.5, §8 scenario 6).
type Orchestrator struct {
	registry   *experts.Registry
	dispatcher *Dispatcher
	provider   llm.Provider
}

func New(registry *experts.Registry, provider llm.Provider) *Orchestrator {
	return &Orchestrator{registry: registry, dispatcher: NewDispatcher(registry), provider: provider}
}

// Run executes the full pipeline for one utterance.
func (o *Orchestrator) Run(ctx context.Context, userID, utterance string, memories []memory.SearchHit) Outcome {
	ranked := o.registry.Rank(ctx, utterance, userID)
	if len(ranked) > 0 && ranked[0].Confidence >= ConfidenceGateThreshold {
		return o.runDirect(ctx, userID, utterance, ranked[0].Expert.Variant(), memories)
	}

	plan := AnalyzeIntent(ctx, o.provider, utterance)
	return o.runPlan(ctx, userID, utterance, plan, memories)
}

// runDirect bypasses planning entirely: a single expert handles the whole
// utterance (spec §4.5 step 2's confidence-gate short circuit).
func (o *Orchestrator) runDirect(ctx context.Context, userID, utterance string, variant experts.Variant, memories []memory.SearchHit) Outcome {
	plan := Plan{
		Tasks:      []Task{{ID: "t1", Expert: variant, Goal: utterance, Inputs: map[string]string{}}},
		FinalStyle: "brief confirmation",
	}
	return o.runPlan(ctx, userID, utterance, plan, memories)
}

func (o *Orchestrator) runPlan(ctx context.Context, userID, utterance string, plan Plan, memories []memory.SearchHit) Outcome {
	base := experts.Context{UserID: userID}
	outcomes := o.dispatcher.Run(ctx, plan, base)

	rolledBack := false
	if hasFailedMutation(outcomes) {
		o.rollback(ctx, outcomes)
		rolledBack = true
	}

	finalMsg, err := Synthesize(ctx, o.provider, utterance, outcomes, memories, plan.FinalStyle)
	if err != nil {
		finalMsg = "I ran into a problem putting that together."
	}

	return Outcome{Plan: plan, TaskOutcomes: outcomes, FinalMessage: finalMsg, RolledBack: rolledBack}
}

// hasFailedMutation reports whether any mutating task failed after at least
// one other mutating task already succeeded — the trigger for rollback
// (spec §4.5 step 5). A lone mutating failure with no prior mutation has
// nothing to compensate.
func hasFailedMutation(outcomes []TaskOutcome) bool {
	anySuccessfulMutation := false
	anyFailedMutation := false
	for _, o := range outcomes {
		mutates := o.Expert != nil && o.Expert.Mutates()
		if !mutates {
			continue
		}
		if o.Err != nil || !o.Result.Success {
			anyFailedMutation = true
		} else {
			anySuccessfulMutation = true
		}
	}
	return anyFailedMutation && anySuccessfulMutation
}

// rollback invokes Compensate, in reverse task order, on every expert that
// mutated successfully. Compensation failures are best-effort: they do not
// stop the remaining compensations from running.
func (o *Orchestrator) rollback(ctx context.Context, outcomes []TaskOutcome) {
	for i := len(outcomes) - 1; i >= 0; i-- {
		oc := outcomes[i]
		if oc.Expert == nil || !oc.Expert.Mutates() || !oc.Result.Success {
			continue
		}
		compensable, ok := oc.Expert.(experts.Compensable)
		if !ok {
			continue
		}
		_ = compensable.Compensate(ctx, oc.Result.Artifacts)
	}
}
