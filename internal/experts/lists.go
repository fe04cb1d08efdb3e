package experts

import (
	"context"
	"fmt"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
	"github.com/zoe-ai/zoe-core/internal/llm"
)

var listsTriggers = []string{"add to my list", "add to list", "to-do", "todo", "shopping list", "checklist", "add item"}

// ListsExpert manages named lists (shopping, to-do, checklists). It mutates
// external state, so orchestration treats it as compensable.
type ListsExpert struct {
	base
	provider llm.Provider
	store    ListsStore
}

// ListsStore is the persistence seam for list items; kept minimal so the
// expert stays testable without a database.
type ListsStore interface {
	AddItem(ctx context.Context, userID, listName, item string) (itemID string, err error)
	RemoveItem(ctx context.Context, userID, itemID string) error
}

func NewListsExpert(provider llm.Provider, store ListsStore) *ListsExpert {
	return &ListsExpert{base: base{variant: VariantLists, mutating: true}, provider: provider, store: store}
}

func (e *ListsExpert) CanHandle(ctx context.Context, query string, ectx Context) (float64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	return keywordScore(query, listsTriggers), nil
}

func (e *ListsExpert) Execute(ctx context.Context, query string, ectx Context) (Result, error) {
	itemID, err := e.store.AddItem(ctx, ectx.UserID, "default", query)
	if err != nil {
		return Result{Success: false, ErrorKind: coreerr.KindOf(err)}, nil
	}
	return Result{
		Success:    true,
		Content:    fmt.Sprintf("Added %q to your list.", query),
		Actions:    []Action{{Name: "lists.add_item", Args: map[string]string{"item_id": itemID}}},
		Artifacts:  map[string]any{"item_id": itemID},
		Confidence: 0.9,
	}, nil
}

// Compensate removes the item the matching Execute call added.
func (e *ListsExpert) Compensate(ctx context.Context, artifact map[string]any) error {
	id, _ := artifact["item_id"].(string)
	if id == "" {
		return nil
	}
	return e.store.RemoveItem(ctx, "", id)
}

var calendarTriggers = []string{"schedule", "calendar", "meeting", "appointment", "book a time"}

// CalendarExpert reads/writes calendar events.
type CalendarExpert struct {
	base
	store CalendarStore
}

type CalendarStore interface {
	CreateEvent(ctx context.Context, userID, title string) (eventID string, err error)
	DeleteEvent(ctx context.Context, userID, eventID string) error
	UpcomingWindow(ctx context.Context, userID string) (string, error)
}

func NewCalendarExpert(store CalendarStore) *CalendarExpert {
	return &CalendarExpert{base: base{variant: VariantCalendar, mutating: true}, store: store}
}

func (e *CalendarExpert) CanHandle(ctx context.Context, query string, ectx Context) (float64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	return keywordScore(query, calendarTriggers), nil
}

func (e *CalendarExpert) Execute(ctx context.Context, query string, ectx Context) (Result, error) {
	eventID, err := e.store.CreateEvent(ctx, ectx.UserID, query)
	if err != nil {
		return Result{Success: false, ErrorKind: coreerr.KindOf(err)}, nil
	}
	return Result{
		Success:    true,
		Content:    fmt.Sprintf("Scheduled: %s", query),
		Actions:    []Action{{Name: "calendar.create_event", Args: map[string]string{"event_id": eventID}}},
		Artifacts:  map[string]any{"event_id": eventID},
		Confidence: 0.85,
	}, nil
}

func (e *CalendarExpert) Compensate(ctx context.Context, artifact map[string]any) error {
	id, _ := artifact["event_id"].(string)
	if id == "" {
		return nil
	}
	return e.store.DeleteEvent(ctx, "", id)
}

var reminderTriggers = []string{"remind me", "reminder", "set a reminder", "don't let me forget"}

// ReminderExpert creates one-off reminders.
type ReminderExpert struct {
	base
	store ReminderStore
}

type ReminderStore interface {
	CreateReminder(ctx context.Context, userID, text string) (reminderID string, err error)
	CancelReminder(ctx context.Context, userID, reminderID string) error
}

func NewReminderExpert(store ReminderStore) *ReminderExpert {
	return &ReminderExpert{base: base{variant: VariantReminder, mutating: true}, store: store}
}

func (e *ReminderExpert) CanHandle(ctx context.Context, query string, ectx Context) (float64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	return keywordScore(query, reminderTriggers), nil
}

func (e *ReminderExpert) Execute(ctx context.Context, query string, ectx Context) (Result, error) {
	id, err := e.store.CreateReminder(ctx, ectx.UserID, query)
	if err != nil {
		return Result{Success: false, ErrorKind: coreerr.KindOf(err)}, nil
	}
	return Result{
		Success:    true,
		Content:    "I'll remind you.",
		Actions:    []Action{{Name: "reminder.create", Args: map[string]string{"reminder_id": id}}},
		Artifacts:  map[string]any{"reminder_id": id},
		Confidence: 0.85,
	}, nil
}

func (e *ReminderExpert) Compensate(ctx context.Context, artifact map[string]any) error {
	id, _ := artifact["reminder_id"].(string)
	if id == "" {
		return nil
	}
	return e.store.CancelReminder(ctx, "", id)
}
