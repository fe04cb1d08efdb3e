package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zoe-ai/zoe-core/internal/experts"
	"github.com/zoe-ai/zoe-core/internal/llm"
)

const planSystemPrompt = `You are a task planner. Given a user message, output ONLY a JSON object:
{"tasks":[{"id":"t1","expert":"lists","goal":"...","inputs":{},"depends_on":[]}],"final_style":"brief confirmation"}
Valid experts: lists, calendar, memory, people, journal, reminder, planning, development, weather, home_automation.`

// route is one keyword-triggered fallback rule, evaluated in order.
type route struct {
	expert   experts.Variant
	triggers []string
}

// keywordRoutes is the authoritative fallback (spec §4.5 step 1): it must
// never crash, so it never calls the inference backend.
var keywordRoutes = []route{
	{experts.VariantLists, []string{"add to my list", "add to list", "to my list", "tasks list", "to-do", "todo", "shopping list"}},
	{experts.VariantCalendar, []string{"schedule", "calendar", "meeting", "appointment"}},
	{experts.VariantReminder, []string{"remind me", "reminder"}},
	{experts.VariantMemory, []string{"remember", "recall", "do you remember"}},
	{experts.VariantPeople, []string{"who is", "tell me about"}},
	{experts.VariantJournal, []string{"journal", "log my day"}},
	{experts.VariantWeather, []string{"weather", "forecast"}},
	{experts.VariantHomeAutomation, []string{"turn on", "turn off", "thermostat", "lock the door"}},
	{experts.VariantPlanning, []string{"plan", "help me organize"}},
	{experts.VariantDevelopment, []string{"write a function", "debug this", "code review"}},
}

// AnalyzeIntent produces a Plan: try the LLM with one JSON-repair retry, then
// fall back to the keyword heuristic. The heuristic always succeeds, even
// with zero matches (it returns a single "memory" catch-all task), so this
// function never errors.
func AnalyzeIntent(ctx context.Context, provider llm.Provider, utterance string) Plan {
	if provider != nil {
		if plan, ok := tryLLMPlan(ctx, provider, utterance); ok {
			return plan
		}
	}
	return keywordPlan(utterance)
}

func tryLLMPlan(ctx context.Context, provider llm.Provider, utterance string) (Plan, bool) {
	raw, err := llm.CollectComplete(ctx, provider, llm.CompleteRequest{
		Messages: []llm.Message{
			{Role: "system", Content: planSystemPrompt},
			{Role: "user", Content: utterance},
		},
	})
	if err != nil {
		return Plan{}, false
	}
	if plan, ok := parsePlan(raw); ok {
		return plan, true
	}

	// One repair retry: ask the model to fix its own malformed output.
	repaired, err := llm.CollectComplete(ctx, provider, llm.CompleteRequest{
		Messages: []llm.Message{
			{Role: "system", Content: planSystemPrompt},
			{Role: "user", Content: utterance},
			{Role: "assistant", Content: raw},
			{Role: "user", Content: "That was not valid JSON matching the required schema. Reply with ONLY the corrected JSON object."},
		},
	})
	if err != nil {
		return Plan{}, false
	}
	return parsePlan(repaired)
}

func parsePlan(raw string) (Plan, bool) {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Plan{}, false
	}
	var plan Plan
	if err := json.Unmarshal([]byte(raw[start:end+1]), &plan); err != nil {
		return Plan{}, false
	}
	if len(plan.Tasks) == 0 {
		return Plan{}, false
	}
	for _, t := range plan.Tasks {
		if t.ID == "" || t.Expert == "" {
			return Plan{}, false
		}
	}
	return plan, true
}

// keywordPlan collects every matching route into its own task (spec §8
// scenario 3: "schedule a meeting and add it to my list" must decompose into
// a calendar task and a lists task, not stop at the first match), falling
// back to a single "memory" catch-all only when nothing matches.
func keywordPlan(utterance string) Plan {
	lc := strings.ToLower(utterance)
	var tasks []Task
	for _, r := range keywordRoutes {
		for _, trigger := range r.triggers {
			if strings.Contains(lc, trigger) {
				tasks = append(tasks, Task{
					ID:     fmt.Sprintf("t%d", len(tasks)+1),
					Expert: r.expert,
					Goal:   utterance,
					Inputs: map[string]string{},
				})
				break
			}
		}
	}
	if len(tasks) == 0 {
		tasks = []Task{{ID: "t1", Expert: experts.VariantMemory, Goal: utterance, Inputs: map[string]string{}}}
	}
	return Plan{Tasks: tasks, FinalStyle: "brief confirmation"}
}
