package orchestrator

import (
	"context"
	"sort"
	"sync"

	"github.com/zoe-ai/zoe-core/internal/experts"
)

// Dispatcher runs a Plan's task DAG against the expert registry.
type Dispatcher struct {
	registry *experts.Registry
	// MaxConcurrency caps simultaneously running tasks; 0 means unlimited.
	MaxConcurrency int
}

func NewDispatcher(registry *experts.Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

type dispatchResult struct {
	idx    int
	id     string
	result experts.Result
	err    error
}

// Run executes plan.Tasks respecting DependsOn edges. Tasks with satisfied
// dependencies that become ready simultaneously start in ascending Task.ID
// order (spec §8 testable determinism property). Each task gets its own
// experts.ExecuteTimeout budget. Upstream results accumulate into
// experts.Context.Upstream, keyed by task id, so downstream tasks can read
// the outputs they depend on.
//
// If a task fails and ContinueOnError is false (the only mode this
// dispatcher supports), remaining unscheduled tasks are abandoned and Run
// returns what completed so the caller can decide on rollback.
func (d *Dispatcher) Run(ctx context.Context, plan Plan, base experts.Context) []TaskOutcome {
	n := len(plan.Tasks)
	outcomes := make([]TaskOutcome, n)
	if n == 0 {
		return outcomes
	}

	idToIdx := make(map[string]int, n)
	for i, t := range plan.Tasks {
		idToIdx[t.ID] = i
	}
	indegree := make([]int, n)
	adj := make(map[int][]int)
	for i, t := range plan.Tasks {
		for _, dep := range t.DependsOn {
			depIdx, ok := idToIdx[dep]
			if !ok {
				continue // dangling dependency: treat as already satisfied
			}
			indegree[i]++
			adj[depIdx] = append(adj[depIdx], i)
		}
	}

	var mu sync.Mutex
	upstream := make(map[string]experts.Result, n)
	ready := make([]int, 0, n)
	for i, deg := range indegree {
		if deg == 0 {
			ready = append(ready, i)
		}
	}
	sort.Slice(ready, func(a, b int) bool { return plan.Tasks[ready[a]].ID < plan.Tasks[ready[b]].ID })

	resCh := make(chan dispatchResult)
	scheduled := 0
	completed := 0
	failed := false

	var sem chan struct{}
	if d.MaxConcurrency > 0 {
		sem = make(chan struct{}, d.MaxConcurrency)
	}

	launch := func(idx int) {
		scheduled++
		go func() {
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			t := plan.Tasks[idx]
			taskCtx, cancel := context.WithTimeout(ctx, experts.ExecuteTimeout)
			defer cancel()

			mu.Lock()
			ectx := base
			ectx.Upstream = make(map[string]experts.Result, len(upstream))
			for k, v := range upstream {
				ectx.Upstream[k] = v
			}
			mu.Unlock()

			result, err := d.registry.Execute(taskCtx, t.Expert, t.Goal, ectx)
			resCh <- dispatchResult{idx: idx, id: t.ID, result: result, err: err}
		}()
	}

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		launch(id)
	}

	for completed < scheduled {
		res := <-resCh
		completed++

		expert, _ := d.registry.Get(plan.Tasks[res.idx].Expert)
		outcomes[res.idx] = TaskOutcome{Task: plan.Tasks[res.idx], Result: res.result, Err: res.err, Expert: expert}

		if res.err != nil || !res.result.Success {
			failed = true
			continue
		}


		mu.Lock()
		upstream[res.id] = res.result
		mu.Unlock()

		if failed {
			continue // don't schedule new work once something has failed
		}

		var newlyReady []int
		for _, dep := range adj[res.idx] {
			indegree[dep]--
			if indegree[dep] == 0 {
				newlyReady = append(newlyReady, dep)
			}
		}
		sort.Slice(newlyReady, func(a, b int) bool { return plan.Tasks[newlyReady[a]].ID < plan.Tasks[newlyReady[b]].ID })
		for _, idx := range newlyReady {
			launch(idx)
		}
	}

	return outcomes
}

// unexecuted reports task ids skipped because an earlier failure stopped
// scheduling before they became ready.
func unexecuted(outcomes []TaskOutcome, plan Plan) []string {
	var skipped []string
	for i, o := range outcomes {
		if o.Task.ID == "" {
			skipped = append(skipped, plan.Tasks[i].ID)
		}
	}
	return skipped
}
