package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
)

// Store implements the Light RAG memory algorithm: embed, search top-K by
// cosine similarity, boost by relationship weight, filter by minimum
// similarity, then break ties by recency and importance (spec §4.1).
type Store struct {
	repo         Repository
	vectors      VectorStore
	embedder     Embedder
	halfLifeDays float64
	cacheTTL     time.Duration
	resultCache  map[string]cachedSearch
}

type cachedSearch struct {
	hits    []SearchHit
	expires time.Time
}

// NewStore wires a relational Repository to a VectorStore and Embedder.
// halfLifeDays controls decay_score's falloff (MEMORY_DECAY_HALFLIFE_DAYS).
func NewStore(repo Repository, vectors VectorStore, embedder Embedder, halfLifeDays float64) *Store {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}
	return &Store{
		repo:         repo,
		vectors:      vectors,
		embedder:     embedder,
		halfLifeDays: halfLifeDays,
		cacheTTL:     5 * time.Second,
		resultCache:  make(map[string]cachedSearch),
	}
}

// UpsertFact embeds and stores a fact, indexing it in the vector store under
// the owning user's id so search never crosses user boundaries.
func (s *Store) UpsertFact(ctx context.Context, userID, text, source string, entityRefs []string, importance float64) (Fact, error) {
	if userID == "" || text == "" {
		return Fact{}, coreerr.New(coreerr.KindValidation, "user_id and text are required", nil)
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return Fact{}, coreerr.New(coreerr.KindFatal, "embed fact", err)
	}
	f := Fact{
		ID:         uuid.NewString(),
		UserID:     userID,
		Text:       text,
		Source:     source,
		EntityRefs: entityRefs,
		Importance: importance,
		Embedding:  vec,
	}
	stored, err := s.repo.UpsertFact(ctx, f)
	if err != nil {
		return Fact{}, coreerr.New(coreerr.KindTransient, "persist fact", err)
	}
	if err := s.vectors.Upsert(ctx, stored.ID, vec, map[string]string{"user_id": userID}); err != nil {
		return Fact{}, coreerr.New(coreerr.KindTransient, "index fact", err)
	}
	return stored, nil
}

// UpsertEntity merges into an existing entity of the same user and type, or
// creates a new one. A write merges when its canonical name matches, or when
// one of its aliases matches an existing entity's canonical name or alias;
// in the alias case the incoming name is kept as an extra alias.
func (s *Store) UpsertEntity(ctx context.Context, userID, entityType, name string, aliases []string, attrs map[string]string) (Entity, error) {
	if userID == "" || entityType == "" || name == "" {
		return Entity{}, coreerr.New(coreerr.KindValidation, "entity user_id/type/canonical_name are required", nil)
	}
	e := Entity{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          entityType,
		CanonicalName: name,
		Aliases:       lowerCaseAll(aliases),
		Attributes:    attrs,
	}
	for _, alias := range e.Aliases {
		existing, err := s.repo.FindEntityByName(ctx, userID, entityType, alias)
		if err == nil && existing.CanonicalName != name {
			e.CanonicalName = existing.CanonicalName
			e.Aliases = append(e.Aliases, lowerCaseAll([]string{name})...)
			break
		}
	}
	stored, err := s.repo.UpsertEntity(ctx, e)
	if err != nil {
		return Entity{}, coreerr.New(coreerr.KindTransient, "persist entity", err)
	}
	return stored, nil
}

// UpsertRelationship ties two entities owned by the same user.
func (s *Store) UpsertRelationship(ctx context.Context, userID, fromEntityID, toEntityID, label string, weight float64) error {
	rel := Relationship{
		UserID:       userID,
		FromEntityID: fromEntityID,
		ToEntityID:   toEntityID,
		Label:        label,
		Weight:       weight,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.UpsertRelationship(ctx, rel); err != nil {
		return coreerr.New(coreerr.KindTransient, "persist relationship", err)
	}
	return nil
}

// SearchOptions controls Search's ranking and filtering.
type SearchOptions struct {
	TopK          int
	MinSimilarity float64
	ContextEntity string // when set, boosts facts referencing this entity's neighborhood
}

// Search runs the full Light RAG ranking pipeline: cosine top-K, relationship
// boost (capped at 1.0), min-similarity filter, recency/importance tie-break,
// then bumps access_count/last_accessed_at on every returned fact as a side
// effect (spec §4.1).
func (s *Store) Search(ctx context.Context, userID, query string, opts SearchOptions) ([]SearchHit, error) {
	if userID == "" || query == "" {
		return nil, coreerr.New(coreerr.KindValidation, "user_id and query are required", nil)
	}
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	cacheKey := userID + "|" + query + "|" + opts.ContextEntity
	if cached, ok := s.resultCache[cacheKey]; ok && time.Now().Before(cached.expires) {
		return cached.hits, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, coreerr.New(coreerr.KindFatal, "embed query", err)
	}

	// Over-fetch so the relationship boost and min-similarity filter still
	// leave TopK results after reranking (spec §4.1 step 2: K = max(50, 4*limit)).
	fetchK := opts.TopK * 4
	if fetchK < 50 {
		fetchK = 50
	}
	raw, err := s.vectors.SimilaritySearch(ctx, vec, fetchK, map[string]string{"user_id": userID})
	if err != nil {
		return nil, coreerr.New(coreerr.KindTransient, "vector search", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	ids := make([]string, len(raw))
	for i, r := range raw {
		ids[i] = r.ID
	}
	facts, err := s.repo.FactsByIDs(ctx, userID, ids)
	if err != nil {
		return nil, coreerr.New(coreerr.KindTransient, "load facts", err)
	}
	factsByID := make(map[string]Fact, len(facts))
	for _, f := range facts {
		factsByID[f.ID] = f
	}

	boost, boostPaths := s.relationshipBoost(ctx, userID, opts.ContextEntity, facts)

	now := time.Now().UTC()
	hits := make([]SearchHit, 0, len(raw))
	for _, r := range raw {
		f, ok := factsByID[r.ID]
		if !ok {
			continue
		}
		score := r.Score + boost[f.ID]
		if score > 1.0 {
			score = 1.0
		}
		if score < opts.MinSimilarity {
			continue
		}
		f.DecayScore = decayScore(f.Importance, now.Sub(f.CreatedAt), s.halfLifeDays)
		hits = append(hits, SearchHit{Fact: f, Score: score, Path: boostPaths[f.ID]})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].Fact.LastAccessedAt.Equal(hits[j].Fact.LastAccessedAt) {
			return hits[i].Fact.LastAccessedAt.After(hits[j].Fact.LastAccessedAt)
		}
		return hits[i].Fact.Importance > hits[j].Fact.Importance
	})
	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}

	for _, h := range hits {
		_ = s.repo.TouchFact(ctx, userID, h.Fact.ID, now)
	}

	s.resultCache[cacheKey] = cachedSearch{hits: hits, expires: now.Add(s.cacheTTL)}
	return hits, nil
}

// relationshipBoost adds +0.1 * max(weight) for facts whose entity_refs are
// within one relationship hop of contextEntity (spec §4.1 step 3). A direct
// entity_ref match is treated as a hop of weight 1.0.
func (s *Store) relationshipBoost(ctx context.Context, userID, contextEntity string, facts []Fact) (map[string]float64, map[string][]string) {
	const boostCoefficient = 0.1
	boost := make(map[string]float64)
	paths := make(map[string][]string)
	if contextEntity == "" {
		return boost, paths
	}
	rels, err := s.repo.RelationshipsFrom(ctx, userID, []string{contextEntity})
	if err != nil || len(rels) == 0 {
		return boost, paths
	}
	neighbor := make(map[string]Relationship, len(rels))
	for _, r := range rels {
		neighbor[r.ToEntityID] = r
	}
	maxWeight := make(map[string]float64)
	for _, f := range facts {
		for _, ref := range f.EntityRefs {
			if ref == contextEntity {
				if 1.0 > maxWeight[f.ID] {
					maxWeight[f.ID] = 1.0
					paths[f.ID] = []string{contextEntity}
				}
				continue
			}
			if r, ok := neighbor[ref]; ok && r.Weight > maxWeight[f.ID] {
				maxWeight[f.ID] = r.Weight
				paths[f.ID] = []string{contextEntity, ref}
			}
		}
	}
	for id, w := range maxWeight {
		boost[id] = boostCoefficient * w
	}
	return boost, paths
}

// ContextualEntity resolves an entity by name within a user's memory, for
// callers that want to seed Search's ContextEntity from a mention.
func (s *Store) ContextualEntity(ctx context.Context, userID, entityType, name string) (Entity, error) {
	e, err := s.repo.FindEntityByName(ctx, userID, entityType, name)
	if err != nil {
		return Entity{}, err
	}
	return e, nil
}

// Stats is a per-user snapshot of how much the Light RAG store holds (spec
// §6: GET /api/memories/stats/light-rag).
type Stats struct {
	UserID        string
	FactCount     int
	EntityCount   int
	RelationCount int
}

func (s *Store) Stats(ctx context.Context, userID string) (Stats, error) {
	if userID == "" {
		return Stats{}, coreerr.New(coreerr.KindValidation, "user_id is required", nil)
	}
	facts, err := s.repo.CountFacts(ctx, userID)
	if err != nil {
		return Stats{}, coreerr.New(coreerr.KindTransient, "count facts", err)
	}
	entities, err := s.repo.CountEntities(ctx, userID)
	if err != nil {
		return Stats{}, coreerr.New(coreerr.KindTransient, "count entities", err)
	}
	relations, err := s.repo.CountRelationships(ctx, userID)
	if err != nil {
		return Stats{}, coreerr.New(coreerr.KindTransient, "count relationships", err)
	}
	return Stats{UserID: userID, FactCount: facts, EntityCount: entities, RelationCount: relations}, nil
}

// lowerCaseAll normalizes entity aliases (spec §3 Entity invariant).
func lowerCaseAll(aliases []string) []string {
	if aliases == nil {
		return nil
	}
	out := make([]string, len(aliases))
	for i, a := range aliases {
		out[i] = strings.ToLower(a)
	}
	return out
}

// decayScore implements importance * exp(-delta_days/half_life_days), which
// is monotonic non-increasing in delta (spec §8 testable property).
func decayScore(importance float64, elapsed time.Duration, halfLifeDays float64) float64 {
	deltaDays := elapsed.Hours() / 24.0
	if deltaDays < 0 {
		deltaDays = 0
	}
	return importance * math.Exp(-deltaDays/halfLifeDays)
}
