// Package orchestrator turns an utterance into an execution plan over the
// expert registry and synthesizes a reply (spec §4.5).
package orchestrator

import (
	"github.com/zoe-ai/zoe-core/internal/experts"
)

// Task is one node of the plan DAG.
type Task struct {
	ID        string            `json:"id"`
	Expert    experts.Variant   `json:"expert"`
	Goal      string            `json:"goal"`
	Inputs    map[string]string `json:"inputs"`
	DependsOn []string          `json:"depends_on"`
}

// Plan is the orchestrator's structured intent-analysis output.
type Plan struct {
	Tasks      []Task `json:"tasks"`
	FinalStyle string `json:"final_style"`
}

// TaskOutcome pairs a task with its expert result, for synthesis and rollback.
type TaskOutcome struct {
	Task    Task
	Result  experts.Result
	Err     error
	Expert  experts.Expert
}

// Outcome is the orchestrator's full per-request result.
type Outcome struct {
	Plan         Plan
	TaskOutcomes []TaskOutcome
	FinalMessage string
	RolledBack   bool
}
