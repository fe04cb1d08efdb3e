// Package databases holds the concrete, backend-specific implementations
// of the persistence package's storage interfaces.
package databases

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
	"github.com/zoe-ai/zoe-core/internal/persistence"
)

// NewPostgresSessionStore returns a Postgres-backed persistence.SessionStore.
func NewPostgresSessionStore(pool *pgxpool.Pool) persistence.SessionStore {
	return &pgSessionStore{pool: pool}
}

type pgSessionStore struct {
	pool *pgxpool.Pool
}

func (s *pgSessionStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions(user_id);

CREATE TABLE IF NOT EXISTS session_messages (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS session_messages_session_created_idx ON session_messages(session_id, created_at);
`)
	return err
}

func (s *pgSessionStore) CreateSession(ctx context.Context, userID, name string) (persistence.ChatSession, error) {
	cs := persistence.ChatSession{ID: uuid.NewString(), UserID: userID, Name: name}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, user_id, name) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		cs.ID, cs.UserID, cs.Name,
	)
	if err := row.Scan(&cs.CreatedAt, &cs.UpdatedAt); err != nil {
		return persistence.ChatSession{}, err
	}
	return cs, nil
}

func (s *pgSessionStore) ListSessions(ctx context.Context, userID string) ([]persistence.ChatSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM sessions WHERE user_id = $1 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persistence.ChatSession
	for rows.Next() {
		var cs persistence.ChatSession
		if err := rows.Scan(&cs.ID, &cs.UserID, &cs.Name, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *pgSessionStore) GetSession(ctx context.Context, id string) (persistence.ChatSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM sessions WHERE id = $1`, id,
	)
	var cs persistence.ChatSession
	if err := row.Scan(&cs.ID, &cs.UserID, &cs.Name, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return persistence.ChatSession{}, coreerr.New(coreerr.KindValidation, "session not found", err)
		}
		return persistence.ChatSession{}, err
	}
	return cs, nil
}

func (s *pgSessionStore) RenameSession(ctx context.Context, id, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return coreerr.New(coreerr.KindValidation, "session not found", nil)
	}
	return nil
}

func (s *pgSessionStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (s *pgSessionStore) AppendMessage(ctx context.Context, sessionID, role, content string) (persistence.ChatMessage, error) {
	msg := persistence.ChatMessage{ID: uuid.NewString(), SessionID: sessionID, Role: role, Content: content}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistence.ChatMessage{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`INSERT INTO session_messages (id, session_id, role, content) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		msg.ID, msg.SessionID, msg.Role, msg.Content,
	)
	if err := row.Scan(&msg.CreatedAt); err != nil {
		return persistence.ChatMessage{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE sessions SET updated_at = NOW() WHERE id = $1`, sessionID); err != nil {
		return persistence.ChatMessage{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return persistence.ChatMessage{}, err
	}
	return msg, nil
}

func (s *pgSessionStore) Messages(ctx context.Context, sessionID string) ([]persistence.ChatMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, created_at FROM session_messages WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persistence.ChatMessage
	for rows.Next() {
		var m persistence.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
