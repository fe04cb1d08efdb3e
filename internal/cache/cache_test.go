package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOrCompute_CachesOnlyWhenSlowAndNonEmpty(t *testing.T) {
	t.Parallel()
	c := New(10, nil, nil)
	ctx := context.Background()

	fast := Fingerprint("alice", "what lists do I have", nil)
	var calls int32
	_, err := c.FetchOrCompute(ctx, fast, SourceLists, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "groceries, errands", nil
	})
	require.NoError(t, err)

	_, err = c.FetchOrCompute(ctx, fast, SourceLists, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "groceries, errands", nil
	})
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls, "fast compute results should not be cached")
}

func TestFetchOrCompute_CachesSlowResult(t *testing.T) {
	t.Parallel()
	c := New(10, nil, nil)
	ctx := context.Background()

	key := Fingerprint("alice", "summarize my week", nil)
	var calls int32
	compute := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(110 * time.Millisecond)
		return "a busy week", nil
	}

	_, err := c.FetchOrCompute(ctx, key, SourceGeneric, compute)
	require.NoError(t, err)
	_, err = c.FetchOrCompute(ctx, key, SourceGeneric, compute)
	require.NoError(t, err)

	assert.EqualValues(t, 1, calls, "slow compute results should be cached after the first call")
}

func TestFetchOrCompute_SingleFlightsConcurrentCallers(t *testing.T) {
	t.Parallel()
	c := New(10, nil, nil)
	ctx := context.Background()

	key := Fingerprint("alice", "what's on my calendar", nil)
	var calls int32
	compute := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(150 * time.Millisecond)
		return "one meeting at 3pm", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.FetchOrCompute(ctx, key, SourceCalendar, compute)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls)
	for _, r := range results {
		assert.Equal(t, "one meeting at 3pm", r)
	}
}

func TestCache_EvictsOldestWhenOverCapacity(t *testing.T) {
	t.Parallel()
	c := New(2, nil, nil)
	ctx := context.Background()
	slow := func(text string) ComputeFunc {
		return func(ctx context.Context) (string, error) {
			time.Sleep(110 * time.Millisecond)
			return text, nil
		}
	}

	_, err := c.FetchOrCompute(ctx, "a", SourceGeneric, slow("a-result"))
	require.NoError(t, err)
	_, err = c.FetchOrCompute(ctx, "b", SourceGeneric, slow("b-result"))
	require.NoError(t, err)
	_, err = c.FetchOrCompute(ctx, "c", SourceGeneric, slow("c-result"))
	require.NoError(t, err)

	assert.LessOrEqual(t, len(c.entries), 2)
}

func TestInvalidate_RemovesMatchingFingerprints(t *testing.T) {
	t.Parallel()
	c := New(10, nil, nil)
	ctx := context.Background()
	slow := func(ctx context.Context) (string, error) {
		time.Sleep(110 * time.Millisecond)
		return "x", nil
	}

	_, err := c.FetchOrCompute(ctx, "memory:alice:1", SourceMemory, slow)
	require.NoError(t, err)

	c.Invalidate(ctx, func(fp string) bool { return fp == "memory:alice:1" })

	_, ok := c.get("memory:alice:1")
	assert.False(t, ok)
}
