package experts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
)

// EndpointClient calls one of an expert's allow-listed external domain APIs
// (weather, home automation, etc. — out-of-core "external collaborators").
// Every call is checked against ectx.AllowedEndpoints before it leaves the
// process.
type EndpointClient struct {
	http *http.Client
}

func NewEndpointClient(client *http.Client) *EndpointClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &EndpointClient{http: client}
}

func (c *EndpointClient) Call(ctx context.Context, endpoint string, allowed []string) (string, error) {
	if !isAllowed(endpoint, allowed) {
		return "", coreerr.New(coreerr.KindAuth, fmt.Sprintf("endpoint %q is not on this expert's allow-list", endpoint), nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", coreerr.New(coreerr.KindValidation, "build endpoint request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", coreerr.New(coreerr.KindTransient, "call external endpoint", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", coreerr.New(coreerr.KindTransient, "read endpoint response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", coreerr.New(coreerr.KindTransient, fmt.Sprintf("endpoint returned %d", resp.StatusCode), nil)
	}
	return string(body), nil
}

func isAllowed(endpoint string, allowed []string) bool {
	for _, a := range allowed {
		if a == endpoint {
			return true
		}
	}
	return false
}
