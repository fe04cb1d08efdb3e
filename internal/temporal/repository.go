package temporal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
)

// Repository persists episodes and their turns.
type Repository interface {
	Init(ctx context.Context) error

	ActiveEpisode(ctx context.Context, userID string) (Episode, error)
	InsertEpisode(ctx context.Context, e Episode) (Episode, error)
	UpdateEpisodeActivity(ctx context.Context, id string, lastActivityAt time.Time, messageCount int) error
	CloseEpisode(ctx context.Context, id string, state EpisodeState, autoSummary string) error
	GetEpisode(ctx context.Context, id string) (Episode, error)
	ExpiredEpisodes(ctx context.Context, at time.Time) ([]Episode, error)

	AppendTurn(ctx context.Context, t Turn) (Turn, error)
	TurnsByEpisode(ctx context.Context, episodeID string, limit int) ([]Turn, error)
	TurnsInRange(ctx context.Context, userID string, from, to time.Time) ([]Turn, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Init(ctx context.Context) error {
	if r.pool == nil {
		return errors.New("temporal repository requires a pool")
	}
	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS episodes (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    context_type TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'active',
    started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_activity_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    timeout_minutes INTEGER NOT NULL,
    message_count INTEGER NOT NULL DEFAULT 0,
    auto_summary TEXT NOT NULL DEFAULT '',
    topics TEXT[] NOT NULL DEFAULT '{}'
);

-- at most one active episode per user
CREATE UNIQUE INDEX IF NOT EXISTS episodes_one_active_idx
    ON episodes(user_id) WHERE state = 'active';

CREATE INDEX IF NOT EXISTS episodes_user_idx ON episodes(user_id, started_at DESC);

CREATE TABLE IF NOT EXISTS episode_turns (
    id TEXT PRIMARY KEY,
    episode_id TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    tokens INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS episode_turns_episode_idx ON episode_turns(episode_id, created_at);
`)
	return err
}

func (r *pgRepository) ActiveEpisode(ctx context.Context, userID string) (Episode, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, context_type, state, started_at, last_activity_at, timeout_minutes, message_count, auto_summary, topics
FROM episodes WHERE user_id = $1 AND state = 'active'`, userID)
	e, err := scanEpisode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Episode{}, coreerr.ErrNotFound
	}
	return e, err
}

// InsertEpisode relies on episodes_one_active_idx to enforce the "at most one
// active episode per user" invariant: a racing insert fails with a unique
// violation, which the caller (Store.GetOrCreateEpisode) retries as a fetch.
func (r *pgRepository) InsertEpisode(ctx context.Context, e Episode) (Episode, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO episodes (id, user_id, context_type, state, started_at, last_activity_at, timeout_minutes, message_count, topics)
VALUES ($1, $2, $3, 'active', $4, $5, $6, 0, $7)
RETURNING id, user_id, context_type, state, started_at, last_activity_at, timeout_minutes, message_count, auto_summary, topics`,
		e.ID, e.UserID, e.ContextType, e.StartedAt, e.LastActivityAt, e.TimeoutMinutes, e.Topics)
	return scanEpisode(row)
}

func (r *pgRepository) UpdateEpisodeActivity(ctx context.Context, id string, lastActivityAt time.Time, messageCount int) error {
	_, err := r.pool.Exec(ctx, `
UPDATE episodes SET last_activity_at = $2, message_count = $3 WHERE id = $1`, id, lastActivityAt, messageCount)
	return err
}

func (r *pgRepository) CloseEpisode(ctx context.Context, id string, state EpisodeState, autoSummary string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE episodes SET state = $2, auto_summary = $3 WHERE id = $1`, id, state, autoSummary)
	return err
}

func (r *pgRepository) GetEpisode(ctx context.Context, id string) (Episode, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, context_type, state, started_at, last_activity_at, timeout_minutes, message_count, auto_summary, topics
FROM episodes WHERE id = $1`, id)
	e, err := scanEpisode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Episode{}, coreerr.ErrNotFound
	}
	return e, err
}

func (r *pgRepository) ExpiredEpisodes(ctx context.Context, at time.Time) ([]Episode, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, context_type, state, started_at, last_activity_at, timeout_minutes, message_count, auto_summary, topics
FROM episodes
WHERE state = 'active' AND $1 - last_activity_at >= (timeout_minutes || ' minutes')::interval`, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEpisode(row pgx.Row) (Episode, error) {
	var e Episode
	if err := row.Scan(&e.ID, &e.UserID, &e.ContextType, &e.State, &e.StartedAt, &e.LastActivityAt,
		&e.TimeoutMinutes, &e.MessageCount, &e.AutoSummary, &e.Topics); err != nil {
		return Episode{}, err
	}
	return e, nil
}

func (r *pgRepository) AppendTurn(ctx context.Context, t Turn) (Turn, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Turn{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO episode_turns (id, episode_id, role, content, created_at, tokens)
VALUES ($1, $2, $3, $4, $5, $6)`, t.ID, t.EpisodeID, t.Role, t.Content, t.CreatedAt, t.Tokens); err != nil {
		return Turn{}, err
	}
	if _, err := tx.Exec(ctx, `
UPDATE episodes SET last_activity_at = $2, message_count = message_count + 1 WHERE id = $1`,
		t.EpisodeID, t.CreatedAt); err != nil {
		return Turn{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Turn{}, err
	}
	return t, nil
}

func (r *pgRepository) TurnsByEpisode(ctx context.Context, episodeID string, limit int) ([]Turn, error) {
	query := `
SELECT id, episode_id, role, content, created_at, tokens
FROM episode_turns WHERE episode_id = $1
ORDER BY created_at ASC, id ASC`
	args := []any{episodeID}
	if limit > 0 {
		query = `
SELECT id, episode_id, role, content, created_at, tokens FROM (
    SELECT id, episode_id, role, content, created_at, tokens
    FROM episode_turns WHERE episode_id = $1
    ORDER BY created_at DESC, id DESC
    LIMIT $2
) sub
ORDER BY created_at ASC, id ASC`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.EpisodeID, &t.Role, &t.Content, &t.CreatedAt, &t.Tokens); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *pgRepository) TurnsInRange(ctx context.Context, userID string, from, to time.Time) ([]Turn, error) {
	rows, err := r.pool.Query(ctx, `
SELECT t.id, t.episode_id, t.role, t.content, t.created_at, t.tokens
FROM episode_turns t
JOIN episodes e ON e.id = t.episode_id
WHERE e.user_id = $1 AND t.created_at >= $2 AND t.created_at < $3
ORDER BY t.created_at ASC`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.EpisodeID, &t.Role, &t.Content, &t.CreatedAt, &t.Tokens); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
