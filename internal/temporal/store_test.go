package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
)

type fakeRepository struct {
	episodes map[string]Episode
	turns    map[string][]Turn
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{episodes: map[string]Episode{}, turns: map[string][]Turn{}}
}

func (f *fakeRepository) Init(ctx context.Context) error { return nil }

func (f *fakeRepository) ActiveEpisode(ctx context.Context, userID string) (Episode, error) {
	for _, e := range f.episodes {
		if e.UserID == userID && e.State == EpisodeActive {
			return e, nil
		}
	}
	return Episode{}, coreerr.ErrNotFound
}

func (f *fakeRepository) InsertEpisode(ctx context.Context, e Episode) (Episode, error) {
	f.episodes[e.ID] = e
	return e, nil
}

func (f *fakeRepository) UpdateEpisodeActivity(ctx context.Context, id string, lastActivityAt time.Time, messageCount int) error {
	e := f.episodes[id]
	e.LastActivityAt = lastActivityAt
	e.MessageCount = messageCount
	f.episodes[id] = e
	return nil
}

func (f *fakeRepository) CloseEpisode(ctx context.Context, id string, state EpisodeState, autoSummary string) error {
	e := f.episodes[id]
	e.State = state
	e.AutoSummary = autoSummary
	f.episodes[id] = e
	return nil
}

func (f *fakeRepository) GetEpisode(ctx context.Context, id string) (Episode, error) {
	e, ok := f.episodes[id]
	if !ok {
		return Episode{}, coreerr.ErrNotFound
	}
	return e, nil
}

func (f *fakeRepository) ExpiredEpisodes(ctx context.Context, at time.Time) ([]Episode, error) {
	var out []Episode
	for _, e := range f.episodes {
		if e.Expired(at) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepository) AppendTurn(ctx context.Context, t Turn) (Turn, error) {
	f.turns[t.EpisodeID] = append(f.turns[t.EpisodeID], t)
	e := f.episodes[t.EpisodeID]
	e.MessageCount++
	e.LastActivityAt = t.CreatedAt
	f.episodes[t.EpisodeID] = e
	return t, nil
}

func (f *fakeRepository) TurnsByEpisode(ctx context.Context, episodeID string, limit int) ([]Turn, error) {
	turns := f.turns[episodeID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (f *fakeRepository) TurnsInRange(ctx context.Context, userID string, from, to time.Time) ([]Turn, error) {
	var out []Turn
	for epID, turns := range f.turns {
		ep := f.episodes[epID]
		if ep.UserID != userID {
			continue
		}
		for _, t := range turns {
			if !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func TestGetOrCreateEpisode_ReturnsActiveEpisode(t *testing.T) {
	repo := newFakeRepository()
	store := NewStore(repo, nil, nil)
	ctx := context.Background()

	first, err := store.GetOrCreateEpisode(ctx, "alice", ContextChat)
	require.NoError(t, err)

	second, err := store.GetOrCreateEpisode(ctx, "alice", ContextChat)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 30, second.TimeoutMinutes)
}

func TestGetOrCreateEpisode_ReplacesExpiredEpisode(t *testing.T) {
	repo := newFakeRepository()
	store := NewStore(repo, nil, nil)
	ctx := context.Background()

	old := Episode{
		ID:             uuid.NewString(),
		UserID:         "alice",
		ContextType:    ContextChat,
		State:          EpisodeActive,
		StartedAt:      time.Now().Add(-2 * time.Hour),
		LastActivityAt: time.Now().Add(-time.Hour),
		TimeoutMinutes: 30,
	}
	repo.episodes[old.ID] = old

	fresh, err := store.GetOrCreateEpisode(ctx, "alice", ContextChat)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Equal(t, EpisodeExpired, repo.episodes[old.ID].State)
}

func TestAppendTurn_IncrementsMessageCount(t *testing.T) {
	repo := newFakeRepository()
	store := NewStore(repo, nil, nil)
	ctx := context.Background()

	ep, err := store.GetOrCreateEpisode(ctx, "alice", ContextChat)
	require.NoError(t, err)

	_, err = store.AppendTurn(ctx, ep.ID, RoleUser, "hello there", nil)
	require.NoError(t, err)
	_, err = store.AppendTurn(ctx, ep.ID, RoleAssistant, "hi!", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, repo.episodes[ep.ID].MessageCount)
	assert.Len(t, repo.turns[ep.ID], 2)
}

func TestCloseEpisode_IsIdempotent(t *testing.T) {
	repo := newFakeRepository()
	store := NewStore(repo, nil, nil)
	ctx := context.Background()

	ep, err := store.GetOrCreateEpisode(ctx, "alice", ContextChat)
	require.NoError(t, err)
	_, err = store.AppendTurn(ctx, ep.ID, RoleUser, "remember to buy milk", nil)
	require.NoError(t, err)

	require.NoError(t, store.CloseEpisode(ctx, ep.ID, CloseUser))
	require.NoError(t, store.CloseEpisode(ctx, ep.ID, CloseUser))

	assert.Equal(t, EpisodeClosed, repo.episodes[ep.ID].State)
}

func TestTimeoutMinutes_PerContextType(t *testing.T) {
	assert.Equal(t, 30, timeoutMinutes(ContextChat))
	assert.Equal(t, 45, timeoutMinutes(ContextGeneral))
	assert.Equal(t, 60, timeoutMinutes(ContextPlanning))
	assert.Equal(t, 120, timeoutMinutes(ContextDevelopment))
}
