package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DefaultUserID is used whenever session resolution is disabled or fails
// (spec §6: "Missing or invalid session -> user_id = 'default' with no
// elevated permissions").
const DefaultUserID = "default"

// SessionResolver resolves a session id to a user id via the auth
// collaborator.
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) string
}

// httpSessionResolver calls GET {baseURL}/session/{id} -> {user_id}.
type httpSessionResolver struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSessionResolver(baseURL string, client *http.Client) SessionResolver {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &httpSessionResolver{baseURL: baseURL, client: client}
}

func (r *httpSessionResolver) Resolve(ctx context.Context, sessionID string) string {
	if r.baseURL == "" || sessionID == "" {
		return DefaultUserID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/session/"+sessionID, nil)
	if err != nil {
		return DefaultUserID
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return DefaultUserID
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DefaultUserID
	}
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.UserID == "" {
		return DefaultUserID
	}
	return body.UserID
}

// StaticResolver always resolves to a fixed user id; used when no auth
// collaborator is configured (AuthURL empty) or in tests.
type StaticResolver struct{ UserID string }

func (r StaticResolver) Resolve(ctx context.Context, sessionID string) string {
	if r.UserID == "" {
		return DefaultUserID
	}
	return r.UserID
}
