package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zoe-ai/zoe-core/internal/memory"
)

// MemoryHandlers wires a memory.Store into /api/memories/* (spec §6).
type MemoryHandlers struct {
	Store *memory.Store
}

// LightRagSearchHandler handles POST /api/memories/search/light-rag.
func (h *MemoryHandlers) LightRagSearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		var body struct {
			UserID        string  `json:"user_id"`
			Query         string  `json:"query"`
			TopK          int     `json:"top_k"`
			MinSimilarity float64 `json:"min_similarity"`
			ContextEntity string  `json:"context_entity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		hits, err := h.Store.Search(r.Context(), body.UserID, body.Query, memory.SearchOptions{
			TopK:          body.TopK,
			MinSimilarity: body.MinSimilarity,
			ContextEntity: body.ContextEntity,
		})
		if err != nil {
			writeErr(w, r, err, "light_rag_search")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
	}
}

// EnhancedHandler handles POST /api/memories/enhanced: an upsert of a fact,
// optionally tagging the entities it mentions (spec §4.1 write path).
func (h *MemoryHandlers) EnhancedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		var body struct {
			UserID     string   `json:"user_id"`
			Text       string   `json:"text"`
			Source     string   `json:"source"`
			EntityRefs []string `json:"entity_refs"`
			Importance float64  `json:"importance"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		fact, err := h.Store.UpsertFact(r.Context(), body.UserID, body.Text, body.Source, body.EntityRefs, body.Importance)
		if err != nil {
			writeErr(w, r, err, "enhanced_upsert")
			return
		}
		writeJSON(w, http.StatusCreated, fact)
	}
}

// ContextualEntityHandler handles GET /api/memories/contextual/{entity}?user_id=&type=.
func (h *MemoryHandlers) ContextualEntityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/api/memories/contextual/")
		name = strings.Trim(name, "/")
		if name == "" {
			http.NotFound(w, r)
			return
		}
		userID := r.URL.Query().Get("user_id")
		entityType := r.URL.Query().Get("type")
		entity, err := h.Store.ContextualEntity(r.Context(), userID, entityType, name)
		if err != nil {
			writeErr(w, r, err, "contextual_entity")
			return
		}
		writeJSON(w, http.StatusOK, entity)
	}
}

// StatsHandler handles GET /api/memories/stats/light-rag?user_id=.
func (h *MemoryHandlers) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID := r.URL.Query().Get("user_id")
		stats, err := h.Store.Stats(r.Context(), userID)
		if err != nil {
			writeErr(w, r, err, "light_rag_stats")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
