package temporal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
	"github.com/zoe-ai/zoe-core/internal/llm"
	"github.com/zoe-ai/zoe-core/internal/memory"
)

// maxSummaryWindow bounds close_episode's auto-summary to the last N turns.
const maxSummaryWindow = 40

// Store implements episode lifecycle, turn append and expiry sweep. An
// async mutex per episode id serializes append/close against a single
// episode while leaving unrelated episodes free to proceed concurrently.
type Store struct {
	repo     Repository
	memories *memory.Store
	provider llm.Provider

	mu       sync.Mutex
	episodeLocks map[string]*sync.Mutex
}

func NewStore(repo Repository, memories *memory.Store, provider llm.Provider) *Store {
	return &Store{repo: repo, memories: memories, provider: provider, episodeLocks: make(map[string]*sync.Mutex)}
}

func (s *Store) lockFor(episodeID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.episodeLocks[episodeID]
	if !ok {
		l = &sync.Mutex{}
		s.episodeLocks[episodeID] = l
	}
	return l
}

// GetOrCreateEpisode returns the user's active, non-expired episode, or
// starts a new one. A race on creation is resolved by retrying as a fetch,
// relying on the repository's unique-active-episode constraint.
func (s *Store) GetOrCreateEpisode(ctx context.Context, userID string, contextType ContextType) (Episode, error) {
	if userID == "" {
		return Episode{}, coreerr.New(coreerr.KindValidation, "user_id is required", nil)
	}
	existing, err := s.repo.ActiveEpisode(ctx, userID)
	if err == nil {
		if !existing.Expired(time.Now().UTC()) {
			return existing, nil
		}
		if closeErr := s.CloseEpisode(ctx, existing.ID, CloseExpired); closeErr != nil {
			return Episode{}, closeErr
		}
	} else if !errors.Is(err, coreerr.ErrNotFound) {
		return Episode{}, coreerr.New(coreerr.KindTransient, "load active episode", err)
	}

	now := time.Now().UTC()
	e := Episode{
		ID:             uuid.NewString(),
		UserID:         userID,
		ContextType:    contextType,
		State:          EpisodeActive,
		StartedAt:      now,
		LastActivityAt: now,
		TimeoutMinutes: timeoutMinutes(contextType),
	}
	created, err := s.repo.InsertEpisode(ctx, e)
	if err != nil {
		// Lost the race to a concurrent creator; the unique index means one
		// of them failed, so fetch the episode that won.
		if active, activeErr := s.repo.ActiveEpisode(ctx, userID); activeErr == nil {
			return active, nil
		}
		return Episode{}, coreerr.New(coreerr.KindConflict, "create episode", err)
	}
	return created, nil
}

// ActiveEpisode returns the user's current active episode without creating
// one, for read-only callers (spec §6: GET /api/temporal-memory/episodes/active).
func (s *Store) ActiveEpisode(ctx context.Context, userID string) (Episode, error) {
	if userID == "" {
		return Episode{}, coreerr.New(coreerr.KindValidation, "user_id is required", nil)
	}
	e, err := s.repo.ActiveEpisode(ctx, userID)
	if err != nil {
		return Episode{}, err
	}
	return e, nil
}

// History returns the user's turns across all time, most recent last (spec
// §6: GET /api/temporal-memory/episodes/history).
func (s *Store) History(ctx context.Context, userID string) ([]Turn, error) {
	if userID == "" {
		return nil, coreerr.New(coreerr.KindValidation, "user_id is required", nil)
	}
	from, to := RangeAll.Bounds(time.Now().UTC())
	turns, err := s.repo.TurnsInRange(ctx, userID, from, to)
	if err != nil {
		return nil, coreerr.New(coreerr.KindTransient, "load turn history", err)
	}
	return turns, nil
}

var mentionPattern = regexp.MustCompile(`@(\w[\w-]*)`)

// AppendTurn appends a turn, bumps episode activity, and opportunistically
// upserts a low-importance fact for any @entity mention in the content
// (spec §4.2's "simple NER or explicit tags" rule).
func (s *Store) AppendTurn(ctx context.Context, episodeID string, role Role, content string, toolCalls []ToolCall) (Turn, error) {
	if episodeID == "" || content == "" {
		return Turn{}, coreerr.New(coreerr.KindValidation, "episode_id and content are required", nil)
	}
	lock := s.lockFor(episodeID)
	lock.Lock()
	defer lock.Unlock()

	episode, err := s.repo.GetEpisode(ctx, episodeID)
	if err != nil {
		return Turn{}, err
	}

	t := Turn{
		ID:        uuid.NewString(),
		EpisodeID: episodeID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		ToolCalls: toolCalls,
	}
	stored, err := s.repo.AppendTurn(ctx, t)
	if err != nil {
		return Turn{}, coreerr.New(coreerr.KindTransient, "append turn", err)
	}

	if s.memories != nil {
		for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
			name := m[1]
			if _, err := s.memories.UpsertFact(ctx, episode.UserID, fmt.Sprintf("mentioned %s: %s", name, content), "turn_mention", nil, 0.3); err != nil {
				// Mention extraction is best-effort; the turn itself is already durable.
				continue
			}
		}
	}
	return stored, nil
}

// CloseEpisode transitions an episode to closed/expired, producing an
// auto_summary over the last maxSummaryWindow turns via the inference
// backend. Closing an already-closed episode re-runs the summary and
// replaces the stored auto_summary; every close that yields a non-empty
// summary also upserts a new episode_summary fact into memory.
func (s *Store) CloseEpisode(ctx context.Context, episodeID string, reason CloseReason) error {
	lock := s.lockFor(episodeID)
	lock.Lock()
	defer lock.Unlock()

	episode, err := s.repo.GetEpisode(ctx, episodeID)
	if err != nil {
		return err
	}

	turns, err := s.repo.TurnsByEpisode(ctx, episodeID, maxSummaryWindow)
	if err != nil {
		return coreerr.New(coreerr.KindTransient, "load turns for summary", err)
	}

	summary := s.summarize(ctx, turns)

	state := EpisodeClosed
	if reason == CloseExpired {
		state = EpisodeExpired
	}
	if err := s.repo.CloseEpisode(ctx, episodeID, state, summary); err != nil {
		return coreerr.New(coreerr.KindTransient, "close episode", err)
	}

	if s.memories != nil && summary != "" {
		_, _ = s.memories.UpsertFact(ctx, episode.UserID, summary, "episode_summary", nil, 0.5)
	}
	return nil
}

func (s *Store) summarize(ctx context.Context, turns []Turn) string {
	if s.provider == nil || len(turns) == 0 {
		return ""
	}
	var transcript string
	for _, t := range turns {
		transcript += fmt.Sprintf("%s: %s\n", t.Role, t.Content)
	}
	text, err := llm.CollectComplete(ctx, s.provider, llm.CompleteRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "Summarize this conversation in 2-3 sentences."},
			{Role: "user", Content: transcript},
		},
	})
	if err != nil {
		return ""
	}
	return text
}

// TemporalSearch delegates the semantic part to the memory store, keeps only
// hits whose fact was created within timeRange, and also returns the user's
// turns created within timeRange.
func (s *Store) TemporalSearch(ctx context.Context, userID, query string, timeRange TimeRange) ([]memory.SearchHit, []Turn, error) {
	hits, err := s.memories.Search(ctx, userID, query, memory.SearchOptions{TopK: 10, MinSimilarity: 0.3})
	if err != nil {
		return nil, nil, err
	}
	from, to := timeRange.Bounds(time.Now().UTC())
	turns, err := s.repo.TurnsInRange(ctx, userID, from, to)
	if err != nil {
		return nil, nil, coreerr.New(coreerr.KindTransient, "load turns in range", err)
	}

	filtered := hits[:0]
	for _, h := range hits {
		if !h.Fact.CreatedAt.Before(from) && h.Fact.CreatedAt.Before(to) {
			filtered = append(filtered, h)
		}
	}
	return filtered, turns, nil
}

// SweepExpired closes every episode whose idle interval has reached its
// timeout. Intended to run periodically (spec §4.2).
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := s.repo.ExpiredEpisodes(ctx, now)
	if err != nil {
		return 0, coreerr.New(coreerr.KindTransient, "load expired episodes", err)
	}
	closed := 0
	for _, e := range expired {
		if err := s.CloseEpisode(ctx, e.ID, CloseExpired); err != nil {
			continue
		}
		closed++
	}
	return closed, nil
}
