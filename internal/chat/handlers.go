package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
	"github.com/zoe-ai/zoe-core/internal/observability"
	"github.com/zoe-ai/zoe-core/internal/persistence"
)

// Handlers wires the Pipeline and the sessions store into the /api/chat*
// HTTP surface (spec §6).
type Handlers struct {
	Pipeline *Pipeline
	Sessions persistence.SessionStore
}

// ChatHandler handles POST /api/chat: SSE when stream=true, a single JSON
// body otherwise.
func (h *Handlers) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			http.Error(w, "message required", http.StatusBadRequest)
			return
		}

		if !req.Stream {
			ce := &collectingEmitter{}
			resp := h.Pipeline.Run(r.Context(), req, ce.Emit)
			if resp.Response == "" {
				resp.Response = ce.String()
			}
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				observability.LoggerWithTrace(r.Context()).Error().Err(err).Msg("encode chat response failed")
			}
			return
		}

		sw, ok := newStreamWriter(w)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer sw.Close()
			h.Pipeline.Run(r.Context(), req, sw.Emit)
		}()
		sw.Run(r.Context())
		<-done
	}
}

// SessionsHandler handles POST /api/chat/sessions and GET /api/chat/sessions?user_id=.
func (h *Handlers) SessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			userID := r.URL.Query().Get("user_id")
			if userID == "" {
				userID = DefaultUserID
			}
			sessions, err := h.Sessions.ListSessions(r.Context(), userID)
			if err != nil {
				writeStoreError(w, r, err, "list_chat_sessions")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(sessions)
		case http.MethodPost:
			defer r.Body.Close()
			var body struct {
				UserID string `json:"user_id"`
				Name   string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			userID := body.UserID
			if userID == "" {
				userID = DefaultUserID
			}
			name := body.Name
			if name == "" {
				name = "New chat"
			}
			sess, err := h.Sessions.CreateSession(r.Context(), userID, name)
			if err != nil {
				writeStoreError(w, r, err, "create_chat_session")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(sess)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// SessionDetailHandler handles GET/PUT/DELETE /api/chat/sessions/{id} and
// GET/POST /api/chat/sessions/{id}/messages.
func (h *Handlers) SessionDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/chat/sessions/")
		rest = strings.Trim(rest, "/")
		if rest == "" {
			http.NotFound(w, r)
			return
		}
		parts := strings.SplitN(rest, "/", 2)
		id := parts[0]
		subresource := ""
		if len(parts) == 2 {
			subresource = parts[1]
		}

		if subresource == "messages" {
			h.sessionMessages(w, r, id)
			return
		}

		switch r.Method {
		case http.MethodGet:
			sess, err := h.Sessions.GetSession(r.Context(), id)
			if err != nil {
				writeStoreError(w, r, err, "get_chat_session")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(sess)
		case http.MethodPut:
			defer r.Body.Close()
			var body struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			if err := h.Sessions.RenameSession(r.Context(), id, body.Name); err != nil {
				writeStoreError(w, r, err, "rename_chat_session")
				return
			}
			sess, err := h.Sessions.GetSession(r.Context(), id)
			if err != nil {
				writeStoreError(w, r, err, "get_chat_session")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(sess)
		case http.MethodDelete:
			if err := h.Sessions.DeleteSession(r.Context(), id); err != nil {
				writeStoreError(w, r, err, "delete_chat_session")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (h *Handlers) sessionMessages(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		msgs, err := h.Sessions.Messages(r.Context(), sessionID)
		if err != nil {
			writeStoreError(w, r, err, "list_chat_messages")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(msgs)
	case http.MethodPost:
		defer r.Body.Close()
		var body struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if body.Role == "" || body.Content == "" {
			http.Error(w, "role and content required", http.StatusBadRequest)
			return
		}
		msg, err := h.Sessions.AppendMessage(r.Context(), sessionID, body.Role, body.Content)
		if err != nil {
			writeStoreError(w, r, err, "append_chat_message")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(msg)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error, op string) {
	if coreerr.KindOf(err) == coreerr.KindValidation {
		http.NotFound(w, r)
		return
	}
	observability.LoggerWithTrace(r.Context()).Error().Err(err).Str("op", op).Msg("chat store operation failed")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
