package llm

import (
	"context"
	"errors"
)

// ErrBackendUnavailable is returned by OfflineProvider for every call, and is
// what callers see when INFERENCE_URL is unset or the backend is down.
var ErrBackendUnavailable = errors.New("inference backend unavailable")

// OfflineProvider always fails. It exists so the pipeline's graceful
// degradation path (spec §8 scenario 6) has something concrete to degrade
// from: a well-formed, apologetic response is still built when this Provider
// is wired in.
type OfflineProvider struct{}

func (OfflineProvider) Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, error) {
	return CompleteResponse{}, ErrBackendUnavailable
}

func (OfflineProvider) Stream(ctx context.Context, req CompleteRequest, h StreamHandler) error {
	h.OnDone(ErrBackendUnavailable)
	return ErrBackendUnavailable
}

// CollectHandler accumulates stream deltas into a single string; used where
// the caller needs a complete body (intent analysis, summarization) rather
// than a token-by-token forward.
type CollectHandler struct {
	Text string
	Err  error
}

func (c *CollectHandler) OnDelta(content string) { c.Text += content }
func (c *CollectHandler) OnDone(err error)       { c.Err = err }

// CollectComplete runs a streaming request to completion and returns the
// concatenated text. It always goes through Stream; Complete is never called.
func CollectComplete(ctx context.Context, p Provider, req CompleteRequest) (string, error) {
	h := &CollectHandler{}
	req.Stream = true
	if err := p.Stream(ctx, req, h); err != nil {
		return "", err
	}
	return h.Text, h.Err
}
