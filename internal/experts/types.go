// Package experts implements the Expert Registry (spec §4.4): a fixed set of
// domain specialists exposed behind a common can_handle/execute contract.
package experts

import (
	"context"
	"time"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
)

// Variant names the ten expert kinds the spec defines; a tagged union
// rather than a duck-typed interface registry, since the set is closed.
type Variant string

const (
	VariantLists           Variant = "lists"
	VariantCalendar        Variant = "calendar"
	VariantMemory          Variant = "memory"
	VariantPeople          Variant = "people"
	VariantJournal         Variant = "journal"
	VariantReminder        Variant = "reminder"
	VariantPlanning        Variant = "planning"
	VariantDevelopment     Variant = "development"
	VariantWeather         Variant = "weather"
	VariantHomeAutomation  Variant = "home_automation"
)

// AllVariants lists every defined expert in a fixed, deterministic order.
var AllVariants = []Variant{
	VariantLists, VariantCalendar, VariantMemory, VariantPeople, VariantJournal,
	VariantReminder, VariantPlanning, VariantDevelopment, VariantWeather, VariantHomeAutomation,
}

// Action describes a side-effecting step an expert took or proposes.
type Action struct {
	Name string
	Args map[string]string
}

// Result is the outcome of an expert's execute call (spec §4.4).
type Result struct {
	Success     bool
	Content     string
	Actions     []Action
	Artifacts   map[string]any
	Confidence  float64
	ErrorKind   coreerr.Kind
}

// CanHandleBudget and ExecuteTimeout are the hard per-call limits spec §4.4
// imposes on every expert.
const (
	CanHandleBudget = 200 * time.Millisecond
	ExecuteTimeout  = 30 * time.Second
)

// Context carries request-scoped data an expert may need beyond the query:
// upstream task outputs (from the orchestrator's DAG), the allow-listed
// endpoints this expert may call, and an idempotency key for mutating calls.
type Context struct {
	UserID         string
	Upstream       map[string]Result
	AllowedEndpoints []string
	IdempotencyKey string
}

// Expert is the common capability contract every variant implements.
type Expert interface {
	Variant() Variant
	// CanHandle returns a confidence in [0,1] that this expert should handle
	// query; must return within CanHandleBudget and must not perform network
	// I/O beyond a local inference backend call.
	CanHandle(ctx context.Context, query string, ectx Context) (float64, error)
	// Execute performs the task. Must respect ExecuteTimeout via ctx.
	Execute(ctx context.Context, query string, ectx Context) (Result, error)
	// Mutates reports whether Execute can change external state, gating
	// rollback/compensation in the orchestrator (spec §4.5 step 5).
	Mutates() bool
}

// Compensable is implemented by experts whose mutation can be undone.
type Compensable interface {
	Compensate(ctx context.Context, artifact map[string]any) error
}
