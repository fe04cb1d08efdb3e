package experts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
)

type stubExpert struct {
	base
	confidence float64
	calls      int
	failUntil  int
	result     Result
}

func (s *stubExpert) CanHandle(ctx context.Context, query string, ectx Context) (float64, error) {
	return s.confidence, nil
}

func (s *stubExpert) Execute(ctx context.Context, query string, ectx Context) (Result, error) {
	s.calls++
	if s.calls <= s.failUntil {
		return Result{}, coreerr.New(coreerr.KindTransient, "simulated transient failure", errors.New("boom"))
	}
	return s.result, nil
}

func TestRegistry_Rank_OrdersByConfidenceThenVariant(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&stubExpert{base: base{variant: VariantLists}, confidence: 0.4, result: Result{Success: true}})
	reg.Register(&stubExpert{base: base{variant: VariantCalendar}, confidence: 0.9, result: Result{Success: true}})
	reg.Register(&stubExpert{base: base{variant: VariantMemory}, confidence: 0.9, result: Result{Success: true}})

	ranked := reg.Rank(context.Background(), "schedule a meeting", "alice")
	require.Len(t, ranked, 3)
	assert.Equal(t, VariantCalendar, ranked[0].Expert.Variant())
	assert.Equal(t, VariantMemory, ranked[1].Expert.Variant())
	assert.Equal(t, VariantLists, ranked[2].Expert.Variant())
}

func TestRegistry_Execute_RetriesOnceOnTransientFailure(t *testing.T) {
	reg := NewRegistry(nil)
	e := &stubExpert{base: base{variant: VariantLists}, failUntil: 1, result: Result{Success: true, Content: "done"}}
	reg.Register(e)

	result, err := reg.Execute(context.Background(), VariantLists, "add milk to my list", Context{UserID: "alice"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, e.calls)
}

func TestRegistry_Execute_DedupesByIdempotencyKey(t *testing.T) {
	reg := NewRegistry(nil)
	e := &stubExpert{base: base{variant: VariantLists, mutating: true}, result: Result{Success: true, Content: "added"}}
	reg.Register(e)

	ectx := Context{UserID: "alice", IdempotencyKey: "req-1"}
	_, err := reg.Execute(context.Background(), VariantLists, "add milk", ectx)
	require.NoError(t, err)
	_, err = reg.Execute(context.Background(), VariantLists, "add milk", ectx)
	require.NoError(t, err)

	assert.Equal(t, 1, e.calls, "second call with the same idempotency key should not re-execute")
}

func TestRegistry_Execute_UnknownVariant(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Execute(context.Background(), VariantWeather, "is it raining", Context{})
	assert.Error(t, err)
}

func TestKeywordScore_NoMatchesReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, keywordScore("what time is it", listsTriggers))
}

func TestKeywordScore_MatchIsCappedBelowOne(t *testing.T) {
	score := keywordScore("add to my list: add item groceries", listsTriggers)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 0.95)
}
