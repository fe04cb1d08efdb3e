// Package persistence defines the storage-backend-agnostic interfaces the
// core depends on; concrete backends live under persistence/databases.
package persistence

import (
	"context"
	"time"
)

// ChatSession is one named conversation thread a user can resume (spec §6:
// POST/GET/PUT/DELETE /api/chat/sessions).
type ChatSession struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage is one persisted message within a session's history.
type ChatMessage struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// SessionStore is the persistence seam for the chat sessions surface.
type SessionStore interface {
	Init(ctx context.Context) error
	CreateSession(ctx context.Context, userID, name string) (ChatSession, error)
	ListSessions(ctx context.Context, userID string) ([]ChatSession, error)
	GetSession(ctx context.Context, id string) (ChatSession, error)
	RenameSession(ctx context.Context, id, name string) error
	DeleteSession(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, sessionID, role, content string) (ChatMessage, error)
	Messages(ctx context.Context, sessionID string) ([]ChatMessage, error)
}
