package experts

import (
	"context"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
	"github.com/zoe-ai/zoe-core/internal/llm"
)

var planningTriggers = []string{"plan", "help me organize", "break this down", "steps to"}

// PlanningExpert turns a goal into an ordered plan of steps via the
// inference backend. It produces content only, no external mutation.
type PlanningExpert struct {
	base
	provider llm.Provider
}

func NewPlanningExpert(provider llm.Provider) *PlanningExpert {
	return &PlanningExpert{base: base{variant: VariantPlanning, mutating: false}, provider: provider}
}

func (e *PlanningExpert) CanHandle(ctx context.Context, query string, ectx Context) (float64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	return keywordScore(query, planningTriggers), nil
}

func (e *PlanningExpert) Execute(ctx context.Context, query string, ectx Context) (Result, error) {
	text, err := llm.CollectComplete(ctx, e.provider, llm.CompleteRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "Break the user's goal into a short numbered plan of concrete steps."},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return Result{Success: false, ErrorKind: coreerr.KindOf(err)}, nil
	}
	return Result{Success: true, Content: text, Confidence: 0.75}, nil
}

var developmentTriggers = []string{"write a function", "debug this", "code review", "fix this bug", "refactor"}

// DevelopmentExpert answers software-development questions via the
// inference backend; it does not execute or commit code itself.
type DevelopmentExpert struct {
	base
	provider llm.Provider
}

func NewDevelopmentExpert(provider llm.Provider) *DevelopmentExpert {
	return &DevelopmentExpert{base: base{variant: VariantDevelopment, mutating: false}, provider: provider}
}

func (e *DevelopmentExpert) CanHandle(ctx context.Context, query string, ectx Context) (float64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	return keywordScore(query, developmentTriggers), nil
}

func (e *DevelopmentExpert) Execute(ctx context.Context, query string, ectx Context) (Result, error) {
	text, err := llm.CollectComplete(ctx, e.provider, llm.CompleteRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "Answer this software development question directly and concisely."},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return Result{Success: false, ErrorKind: coreerr.KindOf(err)}, nil
	}
	return Result{Success: true, Content: text, Confidence: 0.7}, nil
}
