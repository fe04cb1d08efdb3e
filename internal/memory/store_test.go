package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepository is an in-process stand-in for the Postgres repository, used
// so the store's ranking logic can be tested without a database.
type fakeRepository struct {
	facts     map[string]Fact
	entities  map[string]Entity
	relations []Relationship
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{facts: map[string]Fact{}, entities: map[string]Entity{}}
}

func (f *fakeRepository) Init(ctx context.Context) error { return nil }

func (f *fakeRepository) UpsertFact(ctx context.Context, fact Fact) (Fact, error) {
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}
	if fact.LastAccessedAt.IsZero() {
		fact.LastAccessedAt = fact.CreatedAt
	}
	f.facts[fact.ID] = fact
	return fact, nil
}

func (f *fakeRepository) GetFact(ctx context.Context, userID, id string) (Fact, error) {
	fact, ok := f.facts[id]
	if !ok || fact.UserID != userID {
		return Fact{}, assertNotFound
	}
	return fact, nil
}

func (f *fakeRepository) TouchFact(ctx context.Context, userID, id string, accessedAt time.Time) error {
	fact := f.facts[id]
	fact.AccessCount++
	fact.LastAccessedAt = accessedAt
	f.facts[id] = fact
	return nil
}

func (f *fakeRepository) FactsByIDs(ctx context.Context, userID string, ids []string) ([]Fact, error) {
	var out []Fact
	for _, id := range ids {
		if fact, ok := f.facts[id]; ok && fact.UserID == userID {
			out = append(out, fact)
		}
	}
	return out, nil
}

func (f *fakeRepository) UpsertEntity(ctx context.Context, e Entity) (Entity, error) {
	for _, existing := range f.entities {
		if existing.UserID == e.UserID && existing.Type == e.Type && existing.CanonicalName == e.CanonicalName {
			existing.Aliases = append(existing.Aliases, e.Aliases...)
			f.entities[existing.ID] = existing
			return existing, nil
		}
	}
	f.entities[e.ID] = e
	return e, nil
}

func (f *fakeRepository) GetEntity(ctx context.Context, userID, id string) (Entity, error) {
	e, ok := f.entities[id]
	if !ok || e.UserID != userID {
		return Entity{}, assertNotFound
	}
	return e, nil
}

func (f *fakeRepository) FindEntityByName(ctx context.Context, userID, entityType, name string) (Entity, error) {
	for _, e := range f.entities {
		if e.UserID == userID && e.Type == entityType && e.CanonicalName == name {
			return e, nil
		}
	}
	return Entity{}, assertNotFound
}

func (f *fakeRepository) UpsertRelationship(ctx context.Context, rel Relationship) error {
	f.relations = append(f.relations, rel)
	return nil
}

func (f *fakeRepository) RelationshipsFrom(ctx context.Context, userID string, entityIDs []string) ([]Relationship, error) {
	ids := map[string]bool{}
	for _, id := range entityIDs {
		ids[id] = true
	}
	var out []Relationship
	for _, r := range f.relations {
		if r.UserID == userID && ids[r.FromEntityID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepository) CountFacts(ctx context.Context, userID string) (int, error) {
	n := 0
	for _, fact := range f.facts {
		if fact.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) CountEntities(ctx context.Context, userID string) (int, error) {
	n := 0
	for _, e := range f.entities {
		if e.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) CountRelationships(ctx context.Context, userID string) (int, error) {
	n := 0
	for _, r := range f.relations {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

var assertNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "not found" }

func newTestStore() (*Store, *fakeRepository) {
	repo := newFakeRepository()
	vectors := NewInMemoryVectorStore(32)
	embedder := NewHashEmbedder(32)
	return NewStore(repo, vectors, embedder, 30), repo
}

func TestStore_UpsertAndSearch_IsolatesByUser(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	_, err := store.UpsertFact(ctx, "alice", "the kitchen light is on a smart switch", "chat", nil, 0.6)
	require.NoError(t, err)
	_, err = store.UpsertFact(ctx, "bob", "the kitchen light is on a smart switch", "chat", nil, 0.6)
	require.NoError(t, err)

	hits, err := store.Search(ctx, "alice", "kitchen light switch", SearchOptions{TopK: 5})
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "alice", h.Fact.UserID)
	}
}

func TestStore_Search_OrdersByScoreDescending(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	_, err := store.UpsertFact(ctx, "alice", "alice prefers oat milk in her coffee", "chat", nil, 0.9)
	require.NoError(t, err)
	_, err = store.UpsertFact(ctx, "alice", "the weather today is sunny and warm", "chat", nil, 0.2)
	require.NoError(t, err)

	hits, err := store.Search(ctx, "alice", "what milk does alice prefer in coffee", SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Fact.Text, "oat milk")
}

// TestStore_Search_TiesBreakByRecencyThenImportance covers spec §4.1 step 5
// and §8's "within equal score, non-increasing in recency" property: two
// facts with identical text embed to identical scores, so the more recently
// accessed fact must win the tie even though the older fact has the higher
// importance.
func TestStore_Search_TiesBreakByRecencyThenImportance(t *testing.T) {
	store, repo := newTestStore()
	ctx := context.Background()

	older, err := store.UpsertFact(ctx, "alice", "identical phrase for tie break", "chat", nil, 0.9)
	require.NoError(t, err)
	newer, err := store.UpsertFact(ctx, "alice", "identical phrase for tie break", "chat", nil, 0.1)
	require.NoError(t, err)

	now := time.Now().UTC()
	oldFact := repo.facts[older.ID]
	oldFact.CreatedAt = now.Add(-48 * time.Hour)
	oldFact.LastAccessedAt = now.Add(-48 * time.Hour)
	repo.facts[older.ID] = oldFact

	newFact := repo.facts[newer.ID]
	newFact.CreatedAt = now.Add(-1 * time.Hour)
	newFact.LastAccessedAt = now.Add(-1 * time.Hour)
	repo.facts[newer.ID] = newFact

	hits, err := store.Search(ctx, "alice", "identical phrase for tie break", SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, newer.ID, hits[0].Fact.ID, "more recent fact must win the tie despite lower importance")
	assert.Equal(t, older.ID, hits[1].Fact.ID)
}

func TestStore_UpsertEntity_MergesByAlias(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	first, err := store.UpsertEntity(ctx, "alice", "person", "Robert", []string{"Bob"}, nil)
	require.NoError(t, err)

	second, err := store.UpsertEntity(ctx, "alice", "person", "Robert", []string{"Bobby"}, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestDecayScore_IsMonotonicNonIncreasing(t *testing.T) {
	importance := 0.8
	prev := decayScore(importance, 0, 30)
	for days := 1; days <= 120; days++ {
		cur := decayScore(importance, time.Duration(days)*24*time.Hour, 30)
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestHashEmbedder_IsDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
