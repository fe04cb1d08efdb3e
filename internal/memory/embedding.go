package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// Embedder produces a fixed-dimension vector for a piece of text. The store
// accepts at least one real backend plus the deterministic fallback below,
// so it remains usable and reproducible without a GPU (spec §4.1).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// HashEmbedder is the deterministic fallback: a stable hashed-feature vector.
// It never calls out to a model, so embed(T) == embed(T) byte-for-byte
// across processes (spec §8 testable property), and stays well under the
// ~5ms/call CPU budget (spec §5).
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder builds a deterministic fallback embedder at the given
// dimension (384 suggested by spec §4.1, and the MEMORY_EMBEDDING_DIM
// default).
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

// Embed hashes each token into a bucket of the output vector, accumulating a
// signed weight derived from the token hash so that repeated tokens reinforce
// their bucket. The result is L2-normalized.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float64, h.dim)
	for _, tok := range tokenize(text) {
		sum := sha256.Sum256([]byte(tok))
		bucket := int(binary.BigEndian.Uint32(sum[0:4])) % h.dim
		if bucket < 0 {
			bucket += h.dim
		}
		sign := 1.0
		if sum[4]&1 == 1 {
			sign = -1.0
		}
		weight := float64(binary.BigEndian.Uint16(sum[5:7])) / float64(1<<16)
		v[bucket] += sign * (0.5 + weight)
	}
	out := make([]float32, h.dim)
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out, nil
	}
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors. Callers that pre-normalize (as HashEmbedder does) can skip the
// norm division, but this helper is defensive for any embedder backend.
func CosineSimilarity(a, b []float32) float64 {
	var dot, an, bn float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		an += float64(a[i]) * float64(a[i])
		bn += float64(b[i]) * float64(b[i])
	}
	if an == 0 || bn == 0 {
		return 0
	}
	return dot / (math.Sqrt(an) * math.Sqrt(bn))
}
