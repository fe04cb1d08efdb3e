package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
	"github.com/zoe-ai/zoe-core/internal/llm"
)

// ComputeFunc produces a fresh enrichment payload for a cache miss.
type ComputeFunc func(ctx context.Context) (string, error)

// Cache is the process-local fetch-or-compute layer. A Redis-backed tier can
// sit behind it via Backing (see redis.go), consulted on a local miss, so
// cold starts on one instance can still hit entries warmed by another.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]Entry
	maxEntries int
	group      singleflight.Group
	summarizer *Summarizer
	backing    Backing
}

// Backing is an optional secondary store (Redis) consulted on miss and
// updated on every fresh compute, so the cache survives process restarts.
type Backing interface {
	Get(ctx context.Context, fingerprint string) (Entry, bool)
	Set(ctx context.Context, e Entry) error
	Delete(ctx context.Context, fingerprint string) error
}

func New(maxEntries int, summarizer *Summarizer, backing Backing) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{entries: make(map[string]Entry), maxEntries: maxEntries, summarizer: summarizer, backing: backing}
}

// FetchOrCompute implements spec §4.3's contract: return a cached hit if
// present and unexpired; otherwise run compute once per fingerprint even
// under concurrent callers (single-flight), cache the result only when the
// original fetch took at least MinElapsedToCache and is non-empty. The cached
// text is the summarizer's output for sourceKind when summarizing succeeds,
// and the raw result otherwise.
func (c *Cache) FetchOrCompute(ctx context.Context, fingerprint string, sourceKind SourceKind, compute ComputeFunc) (string, error) {
	if fingerprint == "" {
		return "", coreerr.New(coreerr.KindValidation, "fingerprint is required", nil)
	}

	if e, ok := c.get(fingerprint); ok {
		return e.SummaryText, nil
	}
	if c.backing != nil {
		if e, ok := c.backing.Get(ctx, fingerprint); ok && !e.expired(time.Now().UTC()) {
			c.put(e)
			return e.SummaryText, nil
		}
	}

	v, err, _ := c.group.Do(fingerprint, func() (any, error) {
		start := time.Now()
		result, err := compute(ctx)
		if err != nil {
			return "", err
		}
		elapsed := time.Since(start)

		if elapsed >= MinElapsedToCache && result != "" {
			if c.summarizer != nil {
				summarized, ok := c.summarizer.Summarize(ctx, sourceKind, result)
				if ok {
					result = summarized
				}
			}
			e := Entry{
				Fingerprint: fingerprint,
				SummaryText: result,
				SourceKinds: []SourceKind{sourceKind},
				CreatedAt:   time.Now().UTC(),
				TTL:         DefaultTTL,
			}
			c.put(e)
			if c.backing != nil {
				_ = c.backing.Set(ctx, e)
			}
		}
		return result, nil
	})
	if err != nil {
		return "", coreerr.New(coreerr.KindTransient, "compute enrichment", err)
	}
	return v.(string), nil
}

func (c *Cache) get(fingerprint string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fingerprint]
	if !ok {
		return Entry{}, false
	}
	if e.expired(time.Now().UTC()) {
		delete(c.entries, fingerprint)
		return Entry{}, false
	}
	e.Hits++
	c.entries[fingerprint] = e
	return e, true
}

func (c *Cache) put(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Fingerprint] = e
	c.evictLocked()
}

// evictLocked keeps entry count <= maxEntries by evicting the entry with the
// oldest CreatedAt, breaking ties by lowest Hits. Read recency is not
// tracked, so an old entry that is read often is still evicted before a
// newer one that is never read. Callers must hold c.mu.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.maxEntries {
		var victim string
		var victimEntry Entry
		first := true
		for k, e := range c.entries {
			if first || e.CreatedAt.Before(victimEntry.CreatedAt) ||
				(e.CreatedAt.Equal(victimEntry.CreatedAt) && e.Hits < victimEntry.Hits) {
				victim, victimEntry, first = k, e, false
			}
		}
		delete(c.entries, victim)
	}
}

// Invalidate removes every entry whose fingerprint satisfies predicate.
func (c *Cache) Invalidate(ctx context.Context, predicate func(fingerprint string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if predicate(k) {
			delete(c.entries, k)
			if c.backing != nil {
				_ = c.backing.Delete(ctx, k)
			}
		}
	}
}

// Summarizer bounds and sanitizes enrichment output via the inference
// backend, per source kind instruction templates (spec §4.3).
type Summarizer struct {
	provider llm.Provider
	maxChars int
}

func NewSummarizer(provider llm.Provider, maxChars int) *Summarizer {
	if maxChars <= 0 {
		maxChars = 1000
	}
	return &Summarizer{provider: provider, maxChars: maxChars}
}

var instructionBySource = map[SourceKind]string{
	SourceMemory:       "Summarize these memory facts in 2 sentences, focused on what is relevant now.",
	SourceCalendar:     "Summarize this calendar window in one sentence: upcoming events only.",
	SourceLists:        "Summarize the open list items in one short sentence.",
	SourceConversation: "Summarize the recent turns in 1-2 sentences, preserving open questions.",
	SourceGeneric:      "Summarize the following content concisely.",
}

// Summarize calls the inference backend with a per-kind instruction and caps
// the result length. Returns (text, false) when the provider is unavailable,
// so callers fall back to caching the raw (already-cheap-guarded) text.
func (s *Summarizer) Summarize(ctx context.Context, kind SourceKind, raw string) (string, bool) {
	if s == nil || s.provider == nil {
		return raw, false
	}
	instruction, ok := instructionBySource[kind]
	if !ok {
		instruction = instructionBySource[SourceGeneric]
	}
	text, err := llm.CollectComplete(ctx, s.provider, llm.CompleteRequest{
		Messages: []llm.Message{
			{Role: "system", Content: instruction},
			{Role: "user", Content: raw},
		},
	})
	if err != nil || text == "" {
		return raw, false
	}
	if len(text) > s.maxChars {
		text = text[:s.maxChars]
	}
	return text, true
}
