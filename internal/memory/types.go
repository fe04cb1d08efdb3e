// Package memory implements the Light RAG memory store (spec §4.1): a
// user-scoped, relationship-aware vector store of facts and entities.
package memory

import "time"

// Fact is a single RAG-stored statement with a semantic embedding.
type Fact struct {
	ID             string
	UserID         string
	Text           string
	Source         string
	EntityRefs     []string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int
	Importance     float64
	Embedding      []float32
	DecayScore     float64
}

// Entity is a first-class subject of memory (person, project, place, item,
// generic). (user_id, type, canonical_name) is unique.
type Entity struct {
	ID            string
	UserID        string
	Type          string
	CanonicalName string
	Aliases       []string
	Attributes    map[string]string
	Embedding     []float32
}

// Relationship is a directed, weighted tie between two entities owned by the
// same user.
type Relationship struct {
	UserID       string
	FromEntityID string
	ToEntityID   string
	Label        string
	Weight       float64
	CreatedAt    time.Time
}

// SearchHit is one ranked result from Search.
type SearchHit struct {
	Fact  Fact
	Score float64
	Path  []string // entity ids traversed to justify a relationship boost
}

// DefaultHalfLifeDays controls decay_score's exponential falloff; overridable via
// MEMORY_DECAY_HALFLIFE_DAYS (default 30, spec §3).
const DefaultHalfLifeDays = 30.0
