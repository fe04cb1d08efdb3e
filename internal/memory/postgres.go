package memory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
)

// Repository is the relational half of the memory store: facts, entities and
// relationships, all scoped by user_id (spec §4.1's isolation invariant).
type Repository interface {
	Init(ctx context.Context) error

	UpsertFact(ctx context.Context, f Fact) (Fact, error)
	GetFact(ctx context.Context, userID, id string) (Fact, error)
	TouchFact(ctx context.Context, userID, id string, accessedAt time.Time) error
	FactsByIDs(ctx context.Context, userID string, ids []string) ([]Fact, error)

	UpsertEntity(ctx context.Context, e Entity) (Entity, error)
	GetEntity(ctx context.Context, userID, id string) (Entity, error)
	FindEntityByName(ctx context.Context, userID, entityType, name string) (Entity, error)

	UpsertRelationship(ctx context.Context, r Relationship) error
	RelationshipsFrom(ctx context.Context, userID string, entityIDs []string) ([]Relationship, error)

	CountFacts(ctx context.Context, userID string) (int, error)
	CountEntities(ctx context.Context, userID string) (int, error)
	CountRelationships(ctx context.Context, userID string) (int, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Init(ctx context.Context) error {
	if r.pool == nil {
		return errors.New("memory repository requires a pool")
	}
	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS memory_entities (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    canonical_name TEXT NOT NULL,
    aliases TEXT[] NOT NULL DEFAULT '{}',
    attributes JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS memory_entities_unique_idx
    ON memory_entities(user_id, type, canonical_name);

CREATE TABLE IF NOT EXISTS memory_facts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    text TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    entity_refs TEXT[] NOT NULL DEFAULT '{}',
    importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_accessed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    access_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS memory_facts_user_idx ON memory_facts(user_id);

CREATE TABLE IF NOT EXISTS memory_relationships (
    from_entity_id TEXT NOT NULL,
    to_entity_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    label TEXT NOT NULL,
    weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (from_entity_id, to_entity_id, label)
);

CREATE INDEX IF NOT EXISTS memory_relationships_from_idx ON memory_relationships(from_entity_id);
`)
	return err
}

func (r *pgRepository) UpsertFact(ctx context.Context, f Fact) (Fact, error) {
	if f.ID == "" || f.UserID == "" {
		return Fact{}, coreerr.New(coreerr.KindValidation, "fact id and user_id are required", nil)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if f.LastAccessedAt.IsZero() {
		f.LastAccessedAt = f.CreatedAt
	}
	row := r.pool.QueryRow(ctx, `
INSERT INTO memory_facts (id, user_id, text, source, entity_refs, importance, created_at, last_accessed_at, access_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)
ON CONFLICT (id) DO UPDATE SET
    text = EXCLUDED.text,
    source = EXCLUDED.source,
    entity_refs = EXCLUDED.entity_refs,
    importance = EXCLUDED.importance
RETURNING id, user_id, text, source, entity_refs, importance, created_at, last_accessed_at, access_count`,
		f.ID, f.UserID, f.Text, f.Source, f.EntityRefs, f.Importance, f.CreatedAt, f.LastAccessedAt)
	return scanFact(row)
}

func (r *pgRepository) GetFact(ctx context.Context, userID, id string) (Fact, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, text, source, entity_refs, importance, created_at, last_accessed_at, access_count
FROM memory_facts WHERE id = $1 AND user_id = $2`, id, userID)
	f, err := scanFact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Fact{}, coreerr.ErrNotFound
	}
	return f, err
}

func (r *pgRepository) TouchFact(ctx context.Context, userID, id string, accessedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
UPDATE memory_facts SET access_count = access_count + 1, last_accessed_at = $3
WHERE id = $1 AND user_id = $2`, id, userID, accessedAt)
	return err
}

func (r *pgRepository) FactsByIDs(ctx context.Context, userID string, ids []string) ([]Fact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, text, source, entity_refs, importance, created_at, last_accessed_at, access_count
FROM memory_facts WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFact(row pgx.Row) (Fact, error) {
	var f Fact
	if err := row.Scan(&f.ID, &f.UserID, &f.Text, &f.Source, &f.EntityRefs, &f.Importance,
		&f.CreatedAt, &f.LastAccessedAt, &f.AccessCount); err != nil {
		return Fact{}, err
	}
	return f, nil
}

// UpsertEntity implements the merge-by-alias rule: a write that resolves to
// an existing (user_id, type, canonical_name) row merges its aliases and
// attributes into that row rather than creating a duplicate.
func (r *pgRepository) UpsertEntity(ctx context.Context, e Entity) (Entity, error) {
	if e.UserID == "" || e.Type == "" || e.CanonicalName == "" {
		return Entity{}, coreerr.New(coreerr.KindValidation, "entity user_id, type and canonical_name are required", nil)
	}
	attrsJSON := attributesToJSON(e.Attributes)
	row := r.pool.QueryRow(ctx, `
WITH ins AS (
  INSERT INTO memory_entities (id, user_id, type, canonical_name, aliases, attributes)
  VALUES ($1, $2, $3, $4, $5, $6::jsonb)
  ON CONFLICT (user_id, type, canonical_name) DO UPDATE SET
      aliases = (
          SELECT ARRAY(SELECT DISTINCT unnest(memory_entities.aliases || EXCLUDED.aliases))
      ),
      attributes = memory_entities.attributes || EXCLUDED.attributes
  RETURNING id, user_id, type, canonical_name, aliases, attributes
)
SELECT id, user_id, type, canonical_name, aliases, attributes FROM ins`,
		e.ID, e.UserID, e.Type, e.CanonicalName, e.Aliases, attrsJSON)
	return scanEntity(row)
}

func (r *pgRepository) GetEntity(ctx context.Context, userID, id string) (Entity, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, type, canonical_name, aliases, attributes
FROM memory_entities WHERE id = $1 AND user_id = $2`, id, userID)
	ent, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entity{}, coreerr.ErrNotFound
	}
	return ent, err
}

func (r *pgRepository) FindEntityByName(ctx context.Context, userID, entityType, name string) (Entity, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, type, canonical_name, aliases, attributes
FROM memory_entities
WHERE user_id = $1 AND type = $2 AND (canonical_name = $3 OR $3 = ANY(aliases))`,
		userID, entityType, name)
	ent, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entity{}, coreerr.ErrNotFound
	}
	return ent, err
}

func scanEntity(row pgx.Row) (Entity, error) {
	var e Entity
	var attrsJSON []byte
	if err := row.Scan(&e.ID, &e.UserID, &e.Type, &e.CanonicalName, &e.Aliases, &attrsJSON); err != nil {
		return Entity{}, err
	}
	e.Attributes = attributesFromJSON(attrsJSON)
	return e, nil
}

func (r *pgRepository) UpsertRelationship(ctx context.Context, rel Relationship) error {
	if rel.UserID == "" || rel.FromEntityID == "" || rel.ToEntityID == "" || rel.Label == "" {
		return coreerr.New(coreerr.KindValidation, "relationship user_id/from/to/label are required", nil)
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO memory_relationships (from_entity_id, to_entity_id, user_id, label, weight, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (from_entity_id, to_entity_id, label) DO UPDATE SET weight = EXCLUDED.weight`,
		rel.FromEntityID, rel.ToEntityID, rel.UserID, rel.Label, rel.Weight)
	return err
}

func (r *pgRepository) RelationshipsFrom(ctx context.Context, userID string, entityIDs []string) ([]Relationship, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
SELECT from_entity_id, to_entity_id, label, weight, created_at
FROM memory_relationships
WHERE user_id = $1 AND from_entity_id = ANY($2)`, userID, entityIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Relationship
	for rows.Next() {
		var rel Relationship
		if err := rows.Scan(&rel.FromEntityID, &rel.ToEntityID, &rel.Label, &rel.Weight, &rel.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (r *pgRepository) CountFacts(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM memory_facts WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (r *pgRepository) CountEntities(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM memory_entities WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (r *pgRepository) CountRelationships(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM memory_relationships WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func attributesToJSON(attrs map[string]string) []byte {
	if len(attrs) == 0 {
		return []byte("{}")
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

func attributesFromJSON(raw []byte) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
