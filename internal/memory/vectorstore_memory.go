package memory

import (
	"context"
	"sort"
	"sync"
)

// InMemoryVectorStore is the zero-dependency fallback backend: a process-local
// brute-force nearest-neighbor index. It exists so the core runs (and its
// tests run) without a Qdrant instance, and so VECTOR_BACKEND=memory is a
// real, supported deployment mode, not just a test double.
type InMemoryVectorStore struct {
	mu  sync.RWMutex
	dim int
	rows map[string]memRow
}

type memRow struct {
	vector   []float32
	metadata map[string]string
}

func NewInMemoryVectorStore(dim int) *InMemoryVectorStore {
	return &InMemoryVectorStore{dim: dim, rows: make(map[string]memRow)}
}

func (s *InMemoryVectorStore) Dimension() int { return s.dim }

func (s *InMemoryVectorStore) Upsert(_ context.Context, id string, vector []float32, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	s.rows[id] = memRow{vector: vector, metadata: md}
	return nil
}

func (s *InMemoryVectorStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *InMemoryVectorStore) SimilaritySearch(_ context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]VectorResult, 0, len(s.rows))
	for id, row := range s.rows {
		if !matchesFilter(row.metadata, filter) {
			continue
		}
		results = append(results, VectorResult{
			ID:       id,
			Score:    CosineSimilarity(vector, row.vector),
			Metadata: row.metadata,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID // deterministic tie-break
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *InMemoryVectorStore) Close() error { return nil }

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
