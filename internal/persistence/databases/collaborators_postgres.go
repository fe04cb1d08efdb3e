package databases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CollaboratorStore backs the lists, calendar, reminder and journal experts'
// persistence seams with the same tables the rest of the stack (outside this
// core) already owns; the core only needs enough surface to satisfy
// experts.ListsStore/CalendarStore/ReminderStore/JournalStore.
type CollaboratorStore struct {
	pool *pgxpool.Pool
}

// NewCollaboratorStore returns a Postgres-backed CollaboratorStore.
func NewCollaboratorStore(pool *pgxpool.Pool) *CollaboratorStore {
	return &CollaboratorStore{pool: pool}
}

// Init creates the tables this store owns if they don't already exist.
func (s *CollaboratorStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS list_items (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	list_name TEXT NOT NULL,
	item TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	removed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS list_items_user_list_idx ON list_items(user_id, list_name);

CREATE TABLE IF NOT EXISTS calendar_events (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	starts_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	deleted_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS calendar_events_user_starts_idx ON calendar_events(user_id, starts_at);

CREATE TABLE IF NOT EXISTS reminders (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	cancelled_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS reminders_user_idx ON reminders(user_id);

CREATE TABLE IF NOT EXISTS journal_entries (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS journal_entries_user_created_idx ON journal_entries(user_id, created_at);
`)
	return err
}

// AddItem implements experts.ListsStore.
func (s *CollaboratorStore) AddItem(ctx context.Context, userID, listName, item string) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO list_items (id, user_id, list_name, item) VALUES ($1, $2, $3, $4)`,
		id, userID, listName, item,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RemoveItem implements experts.ListsStore.
func (s *CollaboratorStore) RemoveItem(ctx context.Context, userID, itemID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE list_items SET removed_at = NOW() WHERE id = $1 AND user_id = $2`, itemID, userID,
	)
	return err
}

// CreateEvent implements experts.CalendarStore.
func (s *CollaboratorStore) CreateEvent(ctx context.Context, userID, title string) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO calendar_events (id, user_id, title) VALUES ($1, $2, $3)`, id, userID, title,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteEvent implements experts.CalendarStore.
func (s *CollaboratorStore) DeleteEvent(ctx context.Context, userID, eventID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE calendar_events SET deleted_at = NOW() WHERE id = $1 AND user_id = $2`, eventID, userID,
	)
	return err
}

// UpcomingWindow implements experts.CalendarStore: a short digest of the
// user's next events, used both as expert context and as the chat
// pipeline's calendar-window cache source (spec §4.3).
func (s *CollaboratorStore) UpcomingWindow(ctx context.Context, userID string) (string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT title, starts_at FROM calendar_events
		 WHERE user_id = $1 AND deleted_at IS NULL AND starts_at >= NOW()
		 ORDER BY starts_at ASC LIMIT 5`, userID,
	)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var title string
		var startsAt time.Time
		if err := rows.Scan(&title, &startsAt); err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%s at %s", title, startsAt.Format(time.RFC3339)))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "no upcoming events", nil
	}
	return strings.Join(lines, "; "), nil
}

// Snapshot implements chat.ListsSnapshot: a short digest of the user's open
// list items, used as the chat pipeline's lists-snapshot cache source.
func (s *CollaboratorStore) Snapshot(ctx context.Context, userID string) (string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT list_name, item FROM list_items
		 WHERE user_id = $1 AND removed_at IS NULL
		 ORDER BY list_name ASC, created_at ASC LIMIT 20`, userID,
	)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var listName, item string
		if err := rows.Scan(&listName, &item); err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%s: %s", listName, item))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "no open list items", nil
	}
	return strings.Join(lines, "; "), nil
}

// CreateReminder implements experts.ReminderStore.
func (s *CollaboratorStore) CreateReminder(ctx context.Context, userID, text string) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reminders (id, user_id, text) VALUES ($1, $2, $3)`, id, userID, text,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CancelReminder implements experts.ReminderStore.
func (s *CollaboratorStore) CancelReminder(ctx context.Context, userID, reminderID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE reminders SET cancelled_at = NOW() WHERE id = $1 AND user_id = $2`, reminderID, userID,
	)
	return err
}

// AppendEntry implements experts.JournalStore.
func (s *CollaboratorStore) AppendEntry(ctx context.Context, userID, text string) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO journal_entries (id, user_id, text) VALUES ($1, $2, $3)`, id, userID, text,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}
