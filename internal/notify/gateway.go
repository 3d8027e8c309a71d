package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// HTTPGateway talks to an external push-notification gateway over a JSON
// POST carrying the title, body, fill level, and token list. The gateway
// answers with per-token delivery results.
type HTTPGateway struct {
	url    string
	client *http.Client
}

// NewHTTPGateway returns a gateway client with a bounded request timeout.
func NewHTTPGateway(url string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &HTTPGateway{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type pushRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	FillLevel float64  `json:"fillLevel"`
	Tokens    []string `json:"tokens"`
}

// Send posts the notification. Tokens that fail are reported in the
// returned PushReport; an empty token list is a no-op.
func (g *HTTPGateway) Send(ctx context.Context, title, body string, fillLevel float64, tokens []string) (PushReport, error) {
	if len(tokens) == 0 {
		log.Printf("[PushGateway] No tokens, skipping dispatch")
		return PushReport{}, nil
	}

	reqBody, err := json.Marshal(pushRequest{
		Title:     title,
		Body:      body,
		FillLevel: fillLevel,
		Tokens:    tokens,
	})
	if err != nil {
		return PushReport{}, fmt.Errorf("encode push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(reqBody))
	if err != nil {
		return PushReport{}, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return PushReport{}, fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PushReport{}, fmt.Errorf("push gateway returned %s", resp.Status)
	}

	var report PushReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return PushReport{}, fmt.Errorf("decode push report: %w", err)
	}

	for _, res := range report.Results {
		if !res.OK {
			log.Printf("[PushGateway] Delivery to %s failed: %s", shortToken(res.Token), res.Error)
		}
	}
	return report, nil
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
