// Package nlp contains the decision collaborator clients used by http-call
// and intelligent-dialogue flow nodes. Both clients satisfy the flow
// engine's Decider contract; timeouts come in through the context and are
// recovered by the engine via fallback edges.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Request is the wire shape sent to the decision webhook.
type Request struct {
	SessionContext map[string]string `json:"session_context"`
}

// Result is the decision collaborator's answer.
type Result struct {
	Value      string  `json:"result_value"`
	Confidence float64 `json:"confidence"`
}

// HTTPDecider posts the session context to a webhook and matches its
// result value against flow edges.
type HTTPDecider struct {
	endpoint string
	client   *http.Client
}

func NewHTTPDecider(endpoint string, timeout time.Duration) *HTTPDecider {
	return &HTTPDecider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDecider) Decide(ctx context.Context, sessionCtx map[string]string) (string, float64, error) {
	// A node may carry its own webhook URL; fall back to the configured
	// endpoint otherwise.
	url := sessionCtx["url"]
	if url == "" {
		url = d.endpoint
	}
	if url == "" {
		return "", 0, fmt.Errorf("no decision endpoint configured")
	}

	body, err := json.Marshal(Request{SessionContext: sessionCtx})
	if err != nil {
		return "", 0, fmt.Errorf("encoding decision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("decision request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("decision endpoint returned %d", resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", 0, fmt.Errorf("decoding decision response: %w", err)
	}
	return res.Value, res.Confidence, nil
}
