package experts

import (
	"context"
	"fmt"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
	"github.com/zoe-ai/zoe-core/internal/memory"
)

var peopleTriggers = []string{"who is", "tell me about", "my friend", "my colleague", "contact info"}

// PeopleExpert resolves questions about known people using the memory
// store's entity graph.
type PeopleExpert struct {
	base
	store *memory.Store
}

func NewPeopleExpert(store *memory.Store) *PeopleExpert {
	return &PeopleExpert{base: base{variant: VariantPeople, mutating: false}, store: store}
}

func (e *PeopleExpert) CanHandle(ctx context.Context, query string, ectx Context) (float64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	return keywordScore(query, peopleTriggers), nil
}

func (e *PeopleExpert) Execute(ctx context.Context, query string, ectx Context) (Result, error) {
	entity, err := e.store.ContextualEntity(ctx, ectx.UserID, "person", query)
	if err != nil {
		return Result{Success: false, Content: "I don't know anyone by that name yet.", ErrorKind: coreerr.KindOf(err)}, nil
	}
	return Result{
		Success:    true,
		Content:    fmt.Sprintf("%s: %v", entity.CanonicalName, entity.Attributes),
		Artifacts:  map[string]any{"entity_id": entity.ID},
		Confidence: 0.8,
	}, nil
}
