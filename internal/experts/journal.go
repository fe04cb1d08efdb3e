package experts

import (
	"context"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
)

var journalTriggers = []string{"journal", "dear diary", "log my day", "write this down"}

// JournalExpert appends free-form entries to a user's private journal.
type JournalExpert struct {
	base
	store JournalStore
}

type JournalStore interface {
	AppendEntry(ctx context.Context, userID, text string) (entryID string, err error)
}

func NewJournalExpert(store JournalStore) *JournalExpert {
	return &JournalExpert{base: base{variant: VariantJournal, mutating: true}, store: store}
}

func (e *JournalExpert) CanHandle(ctx context.Context, query string, ectx Context) (float64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	return keywordScore(query, journalTriggers), nil
}

func (e *JournalExpert) Execute(ctx context.Context, query string, ectx Context) (Result, error) {
	id, err := e.store.AppendEntry(ctx, ectx.UserID, query)
	if err != nil {
		return Result{Success: false, ErrorKind: coreerr.KindOf(err)}, nil
	}
	return Result{
		Success:    true,
		Content:    "Added that to your journal.",
		Actions:    []Action{{Name: "journal.append", Args: map[string]string{"entry_id": id}}},
		Artifacts:  map[string]any{"entry_id": id},
		Confidence: 0.85,
	}, nil
}
