package experts

import (
	"context"
	"strings"
)

// keywordScore scores query against a set of trigger phrases, mirroring the
// contains-based matching an orchestrator keyword fallback uses, but
// returning a graded confidence instead of a first-match route name.
func keywordScore(query string, triggers []string) float64 {
	lc := strings.ToLower(query)
	hits := 0
	for _, t := range triggers {
		if strings.Contains(lc, strings.ToLower(t)) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	score := 0.5 + 0.15*float64(hits)
	if score > 0.95 {
		score = 0.95
	}
	return score
}

// base provides the Variant/Mutates bookkeeping every expert embeds.
type base struct {
	variant  Variant
	mutating bool
}

func (b base) Variant() Variant { return b.variant }
func (b base) Mutates() bool    { return b.mutating }

// checkContext is a no-op guard point kept symmetric with experts that do
// need to inspect ctx before a cheap can_handle; present so every expert's
// CanHandle has the same shape.
func checkContext(ctx context.Context) error {
	return ctx.Err()
}
