package experts

import (
	"context"
	"sort"
	"sync"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
)

// Registry holds every configured expert, keyed by variant, plus the
// per-variant allow-listed endpoints each expert may call (config's
// EXPERT_ALLOW_<NAME> lists).
type Registry struct {
	mu        sync.RWMutex
	experts   map[Variant]Expert
	allowList map[Variant][]string

	dedupMu sync.Mutex
	seen    map[string]Result // idempotency key -> prior result
}

func NewRegistry(allowList map[Variant][]string) *Registry {
	return &Registry{
		experts:   make(map[Variant]Expert),
		allowList: allowList,
		seen:      make(map[string]Result),
	}
}

func (r *Registry) Register(e Expert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.experts[e.Variant()] = e
}

func (r *Registry) Get(v Variant) (Expert, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.experts[v]
	return e, ok
}

// Variants returns every registered variant in AllVariants order, so
// iteration is deterministic regardless of registration order.
func (r *Registry) Variants() []Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Variant
	for _, v := range AllVariants {
		if _, ok := r.experts[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (r *Registry) allowedEndpoints(v Variant) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allowList[v]
}

// Rank scores every registered expert's CanHandle for query and returns them
// sorted by descending confidence, variant name as a deterministic tie-break.
func (r *Registry) Rank(ctx context.Context, query string, userID string) []ScoredExpert {
	variants := r.Variants()
	scored := make([]ScoredExpert, 0, len(variants))
	for _, v := range variants {
		e, _ := r.Get(v)
		ectx := Context{UserID: userID, AllowedEndpoints: r.allowedEndpoints(v)}
		conf, err := e.CanHandle(ctx, query, ectx)
		if err != nil {
			conf = 0
		}
		scored = append(scored, ScoredExpert{Expert: e, Confidence: conf})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Confidence != scored[j].Confidence {
			return scored[i].Confidence > scored[j].Confidence
		}
		return scored[i].Expert.Variant() < scored[j].Expert.Variant()
	})
	return scored
}

type ScoredExpert struct {
	Expert     Expert
	Confidence float64
}

// Execute runs variant's Execute with the allow-list attached, deduplicating
// by idempotency key for mutating experts and retrying once with the same
// inputs when the failure is transient or a timeout (spec §4.4).
func (r *Registry) Execute(ctx context.Context, v Variant, query string, ectx Context) (Result, error) {
	e, ok := r.Get(v)
	if !ok {
		return Result{}, coreerr.New(coreerr.KindValidation, "unknown expert variant: "+string(v), nil)
	}
	ectx.AllowedEndpoints = r.allowedEndpoints(v)

	if e.Mutates() && ectx.IdempotencyKey != "" {
		r.dedupMu.Lock()
		if prior, ok := r.seen[ectx.IdempotencyKey]; ok {
			r.dedupMu.Unlock()
			return prior, nil
		}
		r.dedupMu.Unlock()
	}

	runCtx, cancel := context.WithTimeout(ctx, ExecuteTimeout)
	defer cancel()
	result, err := e.Execute(runCtx, query, ectx)
	if err != nil {
		result = Result{Success: false, ErrorKind: coreerr.KindOf(err)}
	}

	if !result.Success && coreerr.Retryable(errKindError(result.ErrorKind)) {
		runCtx2, cancel2 := context.WithTimeout(ctx, ExecuteTimeout)
		result2, err2 := e.Execute(runCtx2, query, ectx)
		cancel2()
		if err2 == nil && result2.Success {
			result = result2
		}
	}

	if e.Mutates() && ectx.IdempotencyKey != "" && result.Success {
		r.dedupMu.Lock()
		r.seen[ectx.IdempotencyKey] = result
		r.dedupMu.Unlock()
	}
	return result, nil
}

// errKindError adapts a bare coreerr.Kind back into an error so
// coreerr.Retryable (which inspects *coreerr.Error) can classify it.
func errKindError(k coreerr.Kind) error {
	if k == "" {
		return nil
	}
	return coreerr.New(k, string(k), nil)
}
