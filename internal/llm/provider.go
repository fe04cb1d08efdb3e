// Package llm talks to the local inference backend (spec §6): a single HTTP
// endpoint accepting {model, prompt|messages, stream, options} and returning
// either one JSON body or a stream of token chunks. The core never requires
// structured tool-call tokens from the model — the Provider interface only
// exposes plain completion and streaming, and structure is imposed entirely
// by the orchestrator (spec §4.5).
package llm

import "context"

// Message is one turn of a chat-shaped prompt.
type Message struct {
	Role    string `json:"role"` // "system" | "user" | "assistant"
	Content string `json:"content"`
}

// CompleteRequest is the request body sent to the inference backend.
type CompleteRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages,omitempty"`
	Prompt   string         `json:"prompt,omitempty"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// CompleteResponse is the non-streaming response shape.
type CompleteResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// StreamHandler receives token deltas as they arrive from a streamed
// completion. OnDone is called exactly once, whether or not an error
// occurred; err is nil on a clean end-of-stream.
type StreamHandler interface {
	OnDelta(content string)
	OnDone(err error)
}

// Provider is the minimal contract the core depends on. A real deployment
// points it at INFERENCE_URL; tests substitute a fake that never leaves the
// process, so "offline inference backend" (spec §8 scenario 6) is cheap to
// simulate.
type Provider interface {
	Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, error)
	Stream(ctx context.Context, req CompleteRequest, h StreamHandler) error
}
