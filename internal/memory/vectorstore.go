package memory

import "context"

// VectorResult is a single nearest-neighbor lookup result.
type VectorResult struct {
	ID       string
	Score    float64 // higher is closer
	Metadata map[string]string
}

// VectorStore is the minimum pluggable interface for a vector backend,
// mirroring the persistence layer's other pluggable stores: callers never
// see Qdrant or in-memory specifics, only Upsert/Delete/SimilaritySearch.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
	Dimension() int
	Close() error
}
