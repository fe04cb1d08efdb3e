package services

import (
	"fmt"
	"net/http"
)

// Routes builds the full HTTP surface (spec §6) over the wired components.
func (s *Services) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ready")
	})

	mux.HandleFunc("/api/chat", s.ChatHandlers.ChatHandler())
	mux.HandleFunc("/api/chat/sessions", s.ChatHandlers.SessionsHandler())
	mux.HandleFunc("/api/chat/sessions/", s.ChatHandlers.SessionDetailHandler())

	mux.HandleFunc("/api/temporal-memory/episodes", s.TemporalHandlers.EpisodesHandler())
	mux.HandleFunc("/api/temporal-memory/episodes/active", s.TemporalHandlers.ActiveEpisodeHandler())
	mux.HandleFunc("/api/temporal-memory/episodes/history", s.TemporalHandlers.HistoryHandler())
	mux.HandleFunc("/api/temporal-memory/episodes/", s.TemporalHandlers.EpisodeDetailHandler())
	mux.HandleFunc("/api/temporal-memory/search", s.TemporalHandlers.SearchHandler())
	mux.HandleFunc("/api/temporal-memory/decay/apply", s.TemporalHandlers.DecayApplyHandler())

	mux.HandleFunc("/api/memories/search/light-rag", s.MemoryHandlers.LightRagSearchHandler())
	mux.HandleFunc("/api/memories/enhanced", s.MemoryHandlers.EnhancedHandler())
	mux.HandleFunc("/api/memories/contextual/", s.MemoryHandlers.ContextualEntityHandler())
	mux.HandleFunc("/api/memories/stats/light-rag", s.MemoryHandlers.StatsHandler())

	mux.HandleFunc("/api/orchestration/orchestrate", s.OrchestrationHandlers.OrchestrateHandler())
	mux.HandleFunc("/api/orchestration/status/", s.OrchestrationHandlers.StatusHandler())
	mux.HandleFunc("/api/orchestration/experts", s.OrchestrationHandlers.ExpertsHandler())

	if s.SatisfactionHandlers != nil {
		mux.HandleFunc("/api/satisfaction/feedback", s.SatisfactionHandlers.FeedbackHandler())
		mux.HandleFunc("/api/satisfaction/interaction", s.SatisfactionHandlers.InteractionHandler())
		mux.HandleFunc("/api/satisfaction/metrics", s.SatisfactionHandlers.MetricsHandler())
	}

	return mux
}
