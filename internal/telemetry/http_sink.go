package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPSink persists telemetry events to a remote endpoint over HTTP,
// authenticated with a bearer token (§6 persistence configuration).
type HTTPSink struct {
	endpoint string
	token    string
	client   *retryablehttp.Client
}

// NewHTTPSink builds an HTTPSink posting batches of events as JSON to
// endpoint.
func NewHTTPSink(endpoint, token string) *HTTPSink {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2
	return &HTTPSink{endpoint: endpoint, token: token, client: client}
}

// Persist implements Sink.
func (s *HTTPSink) Persist(ctx context.Context, events []Event) error {
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal telemetry batch: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telemetry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post telemetry batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
