package chat

import "context"

// CalendarWindow is the read-only collaborator seam for the enrichment
// gather's "recent calendar window" (spec §4.6 step 3).
type CalendarWindow interface {
	UpcomingWindow(ctx context.Context, userID string) (string, error)
}

// ListsSnapshot is the read-only collaborator seam for "open lists".
type ListsSnapshot interface {
	Snapshot(ctx context.Context, userID string) (string, error)
}
