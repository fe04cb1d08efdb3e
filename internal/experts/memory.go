package experts

import (
	"context"
	"fmt"
	"strings"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
	"github.com/zoe-ai/zoe-core/internal/memory"
)

var memoryTriggers = []string{"remember", "recall", "what did i say", "do you remember", "forget"}

// MemoryExpert answers queries against the Light RAG memory store. It does
// not mutate external state beyond the memory store itself, which the
// orchestrator doesn't roll back (remembering something isn't undoable in a
// user-visible way), so Mutates is false.
type MemoryExpert struct {
	base
	store *memory.Store
}

func NewMemoryExpert(store *memory.Store) *MemoryExpert {
	return &MemoryExpert{base: base{variant: VariantMemory, mutating: false}, store: store}
}

func (e *MemoryExpert) CanHandle(ctx context.Context, query string, ectx Context) (float64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	return keywordScore(query, memoryTriggers), nil
}

func (e *MemoryExpert) Execute(ctx context.Context, query string, ectx Context) (Result, error) {
	hits, err := e.store.Search(ctx, ectx.UserID, query, memory.SearchOptions{TopK: 5, MinSimilarity: 0.3})
	if err != nil {
		return Result{Success: false, ErrorKind: coreerr.KindOf(err)}, nil
	}
	if len(hits) == 0 {
		return Result{Success: true, Content: "I don't have anything remembered about that.", Confidence: 0.6}, nil
	}
	var lines []string
	for _, h := range hits {
		lines = append(lines, h.Fact.Text)
	}
	return Result{
		Success:    true,
		Content:    fmt.Sprintf("Here's what I remember: %s", strings.Join(lines, "; ")),
		Artifacts:  map[string]any{"fact_count": len(hits)},
		Confidence: 0.9,
	}, nil
}
