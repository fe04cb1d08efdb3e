package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zoe-ai/zoe-core/internal/observability"
	"github.com/zoe-ai/zoe-core/internal/temporal"
)

// TemporalHandlers wires a temporal.Store into /api/temporal-memory/* (spec §6).
type TemporalHandlers struct {
	Store *temporal.Store
}

// EpisodesHandler handles POST /api/temporal-memory/episodes.
func (h *TemporalHandlers) EpisodesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		var body struct {
			UserID      string               `json:"user_id"`
			ContextType temporal.ContextType `json:"context_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if body.ContextType == "" {
			body.ContextType = temporal.ContextChat
		}
		episode, err := h.Store.GetOrCreateEpisode(r.Context(), body.UserID, body.ContextType)
		if err != nil {
			writeErr(w, r, err, "create_episode")
			return
		}
		writeJSON(w, http.StatusCreated, episode)
	}
}

// ActiveEpisodeHandler handles GET /api/temporal-memory/episodes/active?user_id=.
func (h *TemporalHandlers) ActiveEpisodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID := r.URL.Query().Get("user_id")
		episode, err := h.Store.ActiveEpisode(r.Context(), userID)
		if err != nil {
			writeErr(w, r, err, "get_active_episode")
			return
		}
		writeJSON(w, http.StatusOK, episode)
	}
}

// HistoryHandler handles GET /api/temporal-memory/episodes/history?user_id=.
func (h *TemporalHandlers) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID := r.URL.Query().Get("user_id")
		turns, err := h.Store.History(r.Context(), userID)
		if err != nil {
			writeErr(w, r, err, "episode_history")
			return
		}
		writeJSON(w, http.StatusOK, turns)
	}
}

// EpisodeDetailHandler handles POST /api/temporal-memory/episodes/{id}/messages
// and POST /api/temporal-memory/episodes/{id}/close.
func (h *TemporalHandlers) EpisodeDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/temporal-memory/episodes/")
		rest = strings.Trim(rest, "/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		id, action := parts[0], parts[1]

		switch action {
		case "messages":
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			defer r.Body.Close()
			var body struct {
				Role    temporal.Role `json:"role"`
				Content string        `json:"content"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			turn, err := h.Store.AppendTurn(r.Context(), id, body.Role, body.Content, nil)
			if err != nil {
				writeErr(w, r, err, "append_turn")
				return
			}
			writeJSON(w, http.StatusCreated, turn)
		case "close":
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			if err := h.Store.CloseEpisode(r.Context(), id, temporal.CloseUser); err != nil {
				writeErr(w, r, err, "close_episode")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}
}

// SearchHandler handles POST /api/temporal-memory/search.
func (h *TemporalHandlers) SearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		var body struct {
			UserID    string             `json:"user_id"`
			Query     string             `json:"query"`
			TimeRange temporal.TimeRange `json:"time_range"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if body.TimeRange == "" {
			body.TimeRange = temporal.RangeLast7d
		}
		hits, turns, err := h.Store.TemporalSearch(r.Context(), body.UserID, body.Query, body.TimeRange)
		if err != nil {
			writeErr(w, r, err, "temporal_search")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memories": hits, "turns": turns})
	}
}

// DecayApplyHandler handles POST /api/temporal-memory/decay/apply: sweeps
// and closes every episode past its idle timeout (spec §4.2).
func (h *TemporalHandlers) DecayApplyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		closed, err := h.Store.SweepExpired(r.Context())
		if err != nil {
			writeErr(w, r, err, "decay_apply")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"closed": closed})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, r *http.Request, err error, op string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		observability.LoggerWithTrace(r.Context()).Error().Err(err).Str("op", op).Msg("httpapi operation failed")
	}
	http.Error(w, http.StatusText(status), status)
}
