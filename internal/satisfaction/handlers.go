package satisfaction

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/zoe-ai/zoe-core/internal/observability"
)

// Handlers wires a Store into the /api/satisfaction* HTTP surface (spec §6).
type Handlers struct {
	Store *Store
}

// FeedbackHandler handles POST /api/satisfaction/feedback.
func (h *Handlers) FeedbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		var body struct {
			UserID string       `json:"user_id"`
			TurnID string       `json:"turn_id"`
			Kind   FeedbackKind `json:"kind"`
			Value  float64      `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if body.UserID == "" || body.TurnID == "" {
			http.Error(w, "user_id and turn_id are required", http.StatusBadRequest)
			return
		}
		switch body.Kind {
		case FeedbackThumbsUp, FeedbackThumbsDown, FeedbackRating1to5:
		default:
			http.Error(w, "kind must be thumbs_up, thumbs_down, or rating_1_5", http.StatusBadRequest)
			return
		}
		fb, err := h.Store.RecordFeedback(r.Context(), body.UserID, body.TurnID, body.Kind, body.Value)
		if err != nil {
			observability.LoggerWithTrace(r.Context()).Error().Err(err).Msg("record_feedback")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(fb)
	}
}

// InteractionHandler handles POST /api/satisfaction/interaction: ingestion
// of an implicit signal sample computed outside the chat pipeline (e.g. a
// client-reported engagement duration once a session ends).
func (h *Handlers) InteractionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		var body struct {
			UserID           string `json:"user_id"`
			TurnID           string `json:"turn_id"`
			ResponseTimeMs   int64  `json:"response_time_ms"`
			TaskCompleted    bool   `json:"task_completed"`
			FollowUpTurns    int    `json:"follow_up_turns"`
			EngagementTimeMs int64  `json:"engagement_time_ms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if body.UserID == "" || body.TurnID == "" {
			http.Error(w, "user_id and turn_id are required", http.StatusBadRequest)
			return
		}
		sample := InteractionSample{
			UserID:         body.UserID,
			TurnID:         body.TurnID,
			ResponseTime:   time.Duration(body.ResponseTimeMs) * time.Millisecond,
			TaskCompleted:  body.TaskCompleted,
			FollowUpTurns:  body.FollowUpTurns,
			EngagementTime: time.Duration(body.EngagementTimeMs) * time.Millisecond,
		}
		score, err := h.Store.RecordInteraction(r.Context(), sample)
		if err != nil {
			observability.LoggerWithTrace(r.Context()).Error().Err(err).Msg("record_interaction")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(score)
	}
}

// MetricsHandler handles GET /api/satisfaction/metrics?user_id= (omitted for
// the system-wide aggregate, spec §4.7).
func (h *Handlers) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		metrics, err := h.Store.Metrics(r.Context(), userID)
		if err != nil {
			observability.LoggerWithTrace(r.Context()).Error().Err(err).Msg("satisfaction_metrics")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(metrics)
	}
}
