// Package reconcile normalizes the loosely specified response envelopes the
// workflow engine returns into a stable result record.
package reconcile

import (
	"encoding/json"
	"errors"
	"strings"
)

// Sentinel errors for unusable engine responses. Each corresponds to a
// distinct failure point, checked in order.
var (
	ErrRunNotStarted = errors.New("workflow did not start")
	ErrInvalidFormat = errors.New("invalid response format")
	ErrNoOutputs     = errors.New("no answer received")
)

// NotGeneratedSentinel marks output fields the workflow declined to produce.
// Such fields are persisted but withheld from the immediate caller.
const NotGeneratedSentinel = "Not generated"

// RunFailedError reports a run the engine itself marked as failed, carrying
// the engine's own error message as the reason.
type RunFailedError struct {
	Reason string
}

func (e *RunFailedError) Error() string {
	return "workflow run failed: " + e.Reason
}

// Result is a normalized workflow run outcome. Outputs is the full mapping
// and is what gets persisted; Filtered has "not generated" fields dropped
// and is what goes back to the caller.
type Result struct {
	RunID    string
	Outputs  map[string]any
	Filtered map[string]any
}

// runEnvelope covers the two recognized engine response shapes: the current
// one nests status and outputs under "data", an older one carries them at
// the top level next to the run id. Anything else is malformed.
type runEnvelope struct {
	WorkflowRunID string         `json:"workflow_run_id"`
	TaskID        string         `json:"task_id"`
	Data          *runData       `json:"data"`
	Status        string         `json:"status"`
	Outputs       map[string]any `json:"outputs"`
	ErrorMessage  string         `json:"error"`
}

type runData struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	Outputs      map[string]any `json:"outputs"`
	ErrorMessage string         `json:"error"`
}

// Reconcile interprets a raw engine response body. The checks run in order
// and each is a distinct failure: missing run id, missing data envelope,
// engine-reported failure, missing outputs. Per-field JSON parse failures
// are absorbed and never fail the whole run.
func Reconcile(raw []byte) (*Result, error) {
	var env runEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidFormat
	}

	if env.WorkflowRunID == "" {
		return nil, ErrRunNotStarted
	}

	status, outputs, errMsg, err := env.normalize()
	if err != nil {
		return nil, err
	}

	if status == "failed" {
		if errMsg == "" {
			errMsg = "workflow reported failure without detail"
		}
		return nil, &RunFailedError{Reason: errMsg}
	}

	if outputs == nil {
		return nil, ErrNoOutputs
	}

	normalized := make(map[string]any, len(outputs))
	for key, value := range outputs {
		normalized[key] = parseEmbeddedJSON(value)
	}

	filtered := make(map[string]any, len(normalized))
	for key, value := range normalized {
		if s, ok := value.(string); ok && strings.Contains(s, NotGeneratedSentinel) {
			continue
		}
		filtered[key] = value
	}

	return &Result{
		RunID:    env.WorkflowRunID,
		Outputs:  normalized,
		Filtered: filtered,
	}, nil
}

// normalize resolves the envelope variant to (status, outputs, error).
func (e *runEnvelope) normalize() (string, map[string]any, string, error) {
	if e.Data != nil {
		return e.Data.Status, e.Data.Outputs, e.Data.ErrorMessage, nil
	}
	if e.Status != "" {
		return e.Status, e.Outputs, e.ErrorMessage, nil
	}
	return "", nil, "", ErrInvalidFormat
}

// parseEmbeddedJSON turns string values that are syntactically JSON objects
// or arrays into structured data. A string that fails to parse stays a
// string; one malformed field must never abort the others.
func parseEmbeddedJSON(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 0 {
		return value
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return value
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return value
	}
	return parsed
}
