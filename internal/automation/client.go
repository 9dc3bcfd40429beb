// Package automation is the HTTP client for the generic automation
// platform's webhook, used to produce analytics reports.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Sentinel errors for automation platform failures.
var (
	ErrPlatformUnreachable = errors.New("automation platform unreachable")
	ErrPlatformTimeout     = errors.New("automation platform call timed out")
)

// HTTPError carries a non-2xx upstream status and body verbatim.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("automation platform returned status %d", e.Status)
}

// Client is the interface for triggering automation webhooks.
type Client interface {
	Trigger(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// HTTPClient implements Client against a webhook URL.
type HTTPClient struct {
	webhookURL string
	token      string
	client     *http.Client
}

// NewHTTPClient creates a new automation webhook client with a hard timeout.
func NewHTTPClient(webhookURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		webhookURL: webhookURL,
		token:      token,
		client:     &http.Client{Timeout: timeout},
	}
}

// Trigger issues one POST to the webhook. The platform answers synchronously
// with either a JSON object, which is returned as-is, or a JSON array of
// rows, which is wrapped under "rows".
func (c *HTTPClient) Trigger(ctx context.Context, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding webhook payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decoding webhook response: %w", err)
	}

	switch v := decoded.(type) {
	case map[string]any:
		return v, nil
	case []any:
		return map[string]any{"rows": v}, nil
	default:
		return map[string]any{"value": v}, nil
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrPlatformTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrPlatformTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrPlatformUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrPlatformUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
