// Package engine is the HTTP client for the hosted workflow engine. Each
// call is a single attempt with a hard timeout: retries, if ever wanted, sit
// above this client, and a timeout leaves the true upstream outcome unknown.
package engine

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

// Sentinel errors for workflow engine failures.
var (
	ErrEngineUnreachable = errors.New("workflow engine unreachable")
	ErrEngineTimeout     = errors.New("workflow engine call timed out")
)

// HTTPError carries a non-2xx upstream status and body verbatim so callers
// can map known upstream codes (404 workflow missing, 401 bad credentials,
// 5xx upstream fault) without this client reinterpreting them.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("workflow engine returned status %d", e.Status)
}

// Client is the interface for starting workflow runs.
type Client interface {
	RunWorkflow(ctx context.Context, req RunRequest) ([]byte, error)
}

// RunRequest defines parameters for one blocking workflow run.
type RunRequest struct {
	// APIKey selects the workflow app on the engine side.
	APIKey string
	Inputs map[string]any
	// User is the end-user identifier forwarded to the engine for attribution.
	User string
}

// HTTPClient implements Client against the engine's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new workflow engine client with a hard timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// RunWorkflow issues one POST to the engine and returns the raw response
// body on 2xx. The body is deliberately left uninterpreted; shaping it into
// a normalized result is the reconciler's job.
func (c *HTTPClient) RunWorkflow(ctx context.Context, req RunRequest) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"inputs":        req.Inputs,
		"response_mode": "blocking",
		"user":          req.User,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding run request: %w", err)
	}

	u := c.baseURL + "/workflows/run"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading engine response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrEngineUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrEngineUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
