package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zoe-ai/zoe-core/internal/experts"
	"github.com/zoe-ai/zoe-core/internal/orchestrator"
)

// OrchestrationHandlers wires an Orchestrator and its Registry into
// /api/orchestration/* (spec §6). Orchestration runs synchronously today, so
// "status" is a lookup into a bounded in-process result cache rather than an
// async job queue.
type OrchestrationHandlers struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *experts.Registry

	mu      sync.Mutex
	results map[string]orchestrateResponse
	order   []string
}

const maxTrackedResults = 500

type taskResult struct {
	TaskID  string          `json:"task_id"`
	Expert  experts.Variant `json:"expert"`
	Success bool            `json:"success"`
	Content string          `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type orchestrateResponse struct {
	ID           string       `json:"id"`
	FinalMessage string       `json:"final_message"`
	RolledBack   bool         `json:"rolled_back"`
	Tasks        []taskResult `json:"tasks"`
}

// OrchestrateHandler handles POST /api/orchestration/orchestrate.
func (h *OrchestrationHandlers) OrchestrateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		var body struct {
			UserID  string `json:"user_id"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Message) == "" {
			http.Error(w, "message is required", http.StatusBadRequest)
			return
		}

		outcome := h.Orchestrator.Run(r.Context(), body.UserID, body.Message, nil)
		resp := orchestrateResponse{
			ID:           uuid.NewString(),
			FinalMessage: outcome.FinalMessage,
			RolledBack:   outcome.RolledBack,
		}
		for _, to := range outcome.TaskOutcomes {
			tr := taskResult{TaskID: to.Task.ID, Expert: to.Task.Expert, Success: to.Result.Success, Content: to.Result.Content}
			if to.Err != nil {
				tr.Error = to.Err.Error()
			}
			resp.Tasks = append(resp.Tasks, tr)
		}
		h.remember(resp)
		writeJSON(w, http.StatusOK, resp)
	}
}

// StatusHandler handles GET /api/orchestration/status/{id}.
func (h *OrchestrationHandlers) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/orchestration/status/")
		id = strings.Trim(id, "/")
		h.mu.Lock()
		resp, ok := h.results[id]
		h.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ExpertsHandler handles GET /api/orchestration/experts: the registered
// variants in their fixed, deterministic order (spec §4.4).
func (h *OrchestrationHandlers) ExpertsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"experts": h.Registry.Variants()})
	}
}

func (h *OrchestrationHandlers) remember(resp orchestrateResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.results == nil {
		h.results = make(map[string]orchestrateResponse)
	}
	h.results[resp.ID] = resp
	h.order = append(h.order, resp.ID)
	if len(h.order) > maxTrackedResults {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.results, oldest)
	}
}
