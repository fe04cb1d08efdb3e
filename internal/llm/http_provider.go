package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// chunk is the minimal shape expected per streamed line: either a bare
// "data: {...}\n\n" SSE frame or a newline-delimited JSON chunk. Either way
// the only field the core needs is the incremental text.
type chunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

// HTTPProvider calls a local inference backend over plain HTTP, per spec §6.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider builds a Provider pointed at baseURL (INFERENCE_URL).
func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *HTTPProvider) Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, error) {
	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return CompleteResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/complete", bytes.NewReader(body))
	if err != nil {
		return CompleteResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CompleteResponse{}, fmt.Errorf("inference backend request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompleteResponse{}, fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return CompleteResponse{}, fmt.Errorf("inference backend returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out CompleteResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return CompleteResponse{}, fmt.Errorf("decode inference response: %w", err)
	}
	return out, nil
}

// Stream issues a streaming request and forwards each token delta to h. The
// backend may emit either SSE "data: {...}" lines or bare JSON lines; both
// are tolerated since the core must work with gated and open models alike.
func (p *HTTPProvider) Stream(ctx context.Context, req CompleteRequest, h StreamHandler) error {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		h.OnDone(err)
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/complete", bytes.NewReader(body))
	if err != nil {
		h.OnDone(err)
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		h.OnDone(err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("inference backend returned %d: %s", resp.StatusCode, string(respBody))
		h.OnDone(err)
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "data:")
		line = strings.TrimSpace(line)
		if line == "[DONE]" {
			break
		}
		var c chunk
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			// Tolerate a bare-token line from an unstructured backend.
			h.OnDelta(line)
			continue
		}
		if c.Content != "" {
			h.OnDelta(c.Content)
		}
		if c.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		h.OnDone(err)
		return err
	}
	h.OnDone(nil)
	return nil
}
