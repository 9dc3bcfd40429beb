// Package requests owns the submission gate and job lifecycle: one in-flight
// submission per request, external invocation, reconciliation, and the
// guarantee that every exit path leaves a request in a terminal state.
package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/SimonPP123/verto-digital-app-sub002/internal/automation"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/cache"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/config"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/engine"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/metrics"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/reconcile"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/schema"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/store"
	"github.com/SimonPP123/verto-digital-app-sub002/pkg/models"
)

const statusCacheTTL = 30 * time.Minute

// ErrInvalidPayload marks submissions rejected before the gate is touched.
var ErrInvalidPayload = errors.New("invalid request payload")

// Service orchestrates request submission against the external services.
type Service struct {
	store      store.Store
	cache      cache.Cache
	engine     engine.Client
	automation automation.Client
	metrics    *metrics.Metrics
	engineKeys map[string]string
}

// NewService creates a new request Service.
func NewService(st store.Store, ca cache.Cache, eng engine.Client, auto automation.Client, m *metrics.Metrics, engineCfg config.EngineConfig) *Service {
	return &Service{
		store:      st,
		cache:      ca,
		engine:     eng,
		automation: auto,
		metrics:    m,
		engineKeys: map[string]string{
			models.TypeAdCopy:           engineCfg.AdCopyKey,
			models.TypeAudienceAnalysis: engineCfg.AudienceKey,
		},
	}
}

// SubmitParams holds validated identity plus the caller-supplied submission.
type SubmitParams struct {
	OwnerID   uuid.UUID
	RequestID *uuid.UUID // nil starts a fresh request
	Type      string
	Payload   map[string]any
}

// SubmitResult is the outcome of a completed submission. Outputs is the
// sentinel-filtered mapping returned to the caller; Saved reports whether
// the unfiltered result reached durable storage.
type SubmitResult struct {
	Request *models.Request
	Outputs map[string]any
	Saved   bool
}

// Submit runs one full submission: validate, enter the gate, invoke the
// external service, reconcile, persist. It blocks until the request reaches
// a terminal state; concurrent submissions for the same request are rejected
// with store.ErrAlreadyProcessing and never reach the external service.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (res *SubmitResult, err error) {
	if err := schema.ValidatePayload(params.Type, params.Payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	req, err := s.enterGate(ctx, params)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyProcessing) {
			s.metrics.SubmissionsTotal.WithLabelValues(params.Type, "rejected").Inc()
		}
		return nil, err
	}

	// Terminal writes must survive the caller hanging up mid-call.
	bg := context.WithoutCancel(ctx)
	_ = s.cache.SetRequestStatus(bg, req.OwnerID, req.ID, models.StatusProcessing, statusCacheTTL)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during submission", "request_id", req.ID, "error", r)
			s.fail(bg, req, fmt.Sprintf("internal error: %v", r))
			res, err = nil, fmt.Errorf("panic during submission: %v", r)
		}
	}()

	outputs, filtered, err := s.invoke(ctx, req)
	if err != nil {
		s.fail(bg, req, failureReason(err))
		s.metrics.SubmissionsTotal.WithLabelValues(req.Type, "error").Inc()
		return nil, err
	}

	saved := true
	if err := s.store.CompleteRequest(bg, req.ID, outputs); err != nil {
		// Durability is advisory: the computation succeeded, so the caller
		// still gets the result. The staleness sweep is the backstop that
		// moves the row out of processing if this write never lands.
		slog.Error("failed to persist result", "request_id", req.ID, "error", err)
		s.metrics.PersistenceFailures.Inc()
		saved = false
	}
	_ = s.cache.SetRequestStatus(bg, req.OwnerID, req.ID, models.StatusCompleted, statusCacheTTL)

	outcome := "completed"
	if !saved {
		outcome = "unsaved"
	}
	s.metrics.SubmissionsTotal.WithLabelValues(req.Type, outcome).Inc()

	req.Status = models.StatusCompleted
	req.Result = outputs
	req.ErrorMessage = nil
	req.LastActivityAt = time.Now().UTC()
	return &SubmitResult{Request: req, Outputs: filtered, Saved: saved}, nil
}

// enterGate creates or locates the request record and wins or loses the
// single compare-and-set into processing. The loser of a race on the same
// request returns store.ErrAlreadyProcessing here and never invokes the
// external service.
func (s *Service) enterGate(ctx context.Context, params SubmitParams) (*models.Request, error) {
	if params.RequestID == nil {
		now := time.Now().UTC()
		req := &models.Request{
			ID:             uuid.New(),
			OwnerID:        params.OwnerID,
			Type:           params.Type,
			Status:         models.StatusIdle,
			Payload:        params.Payload,
			LastActivityAt: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.CreateRequest(ctx, req); err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if err := s.store.SetProcessing(ctx, req.ID); err != nil {
			return nil, err
		}
		req.Status = models.StatusProcessing
		return req, nil
	}

	req, err := s.store.GetRequest(ctx, *params.RequestID)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != params.OwnerID {
		return nil, store.ErrNotFound
	}
	if req.Type != params.Type {
		return nil, fmt.Errorf("%w: request is of type %q", ErrInvalidPayload, req.Type)
	}

	if err := s.store.SetProcessing(ctx, req.ID); err != nil {
		return nil, err
	}
	// We hold the gate; no concurrent writer can touch this row now.
	if err := s.store.UpdateRequestPayload(ctx, req.ID, params.Payload); err != nil {
		s.fail(context.WithoutCancel(ctx), req, "failed to record submission payload")
		return nil, err
	}
	req.Status = models.StatusProcessing
	req.Payload = params.Payload
	req.Result = nil
	req.ErrorMessage = nil
	return req, nil
}

// invoke calls the external service for the request's type and returns the
// normalized outputs (persisted form, filtered form).
func (s *Service) invoke(ctx context.Context, req *models.Request) (map[string]any, map[string]any, error) {
	switch req.Type {
	case models.TypeAdCopy, models.TypeAudienceAnalysis:
		raw, err := s.engine.RunWorkflow(ctx, engine.RunRequest{
			APIKey: s.engineKeys[req.Type],
			Inputs: req.Payload,
			User:   req.OwnerID.String(),
		})
		if err != nil {
			s.metrics.UpstreamFailures.WithLabelValues(failureClass(err)).Inc()
			return nil, nil, err
		}
		result, err := reconcile.Reconcile(raw)
		if err != nil {
			s.metrics.UpstreamFailures.WithLabelValues(failureClass(err)).Inc()
			return nil, nil, err
		}
		return result.Outputs, result.Filtered, nil

	case models.TypeAnalyticsReport:
		out, err := s.automation.Trigger(ctx, req.Payload)
		if err != nil {
			s.metrics.UpstreamFailures.WithLabelValues(failureClass(err)).Inc()
			return nil, nil, err
		}
		return out, out, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown request type %q", ErrInvalidPayload, req.Type)
	}
}

// fail moves a request to the error state. Best effort on both stores; the
// request must not stay in processing even if one write fails.
func (s *Service) fail(ctx context.Context, req *models.Request, reason string) {
	if err := s.store.FailRequest(ctx, req.ID, reason); err != nil {
		slog.Error("failed to mark request as errored", "request_id", req.ID, "error", err)
	}
	_ = s.cache.SetRequestStatus(ctx, req.OwnerID, req.ID, models.StatusError, statusCacheTTL)
	req.Status = models.StatusError
	req.ErrorMessage = &reason
	req.Result = nil
}

// StatusView is what a polling caller sees for one request.
type StatusView struct {
	ID     uuid.UUID      `json:"id"`
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  *string        `json:"error,omitempty"`
}

// Status reads the current state of a request. Reads are never exclusive and
// may run concurrently with a submission. While a request is mid-flight the
// cached status answers without touching the database; terminal states are
// read from storage so the result travels with them. The cache key carries
// the owner, so a foreign caller misses the fast path and hits the store's
// ownership check instead.
func (s *Service) Status(ctx context.Context, requestID uuid.UUID, ownerID uuid.UUID) (*StatusView, error) {
	if status, found, err := s.cache.GetRequestStatus(ctx, ownerID, requestID); err == nil && found &&
		status == models.StatusProcessing {
		return &StatusView{ID: requestID, Status: models.StatusProcessing}, nil
	}

	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return &StatusView{
		ID:     req.ID,
		Status: req.Status,
		Result: req.Result,
		Error:  req.ErrorMessage,
	}, nil
}

// List returns the caller's request history, newest activity first.
func (s *Service) List(ctx context.Context, filter store.RequestFilter) ([]*models.Request, int, error) {
	return s.store.ListRequests(ctx, filter)
}

// Delete removes a request owned by the caller.
func (s *Service) Delete(ctx context.Context, requestID uuid.UUID, ownerID uuid.UUID) error {
	if err := s.store.DeleteRequest(ctx, requestID, ownerID); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, cache.RequestStatusKey(ownerID, requestID))
	return nil
}

// failureReason renders an upstream failure into the diagnostic stored on
// the request. Engine-reported failures keep the engine's own message.
func failureReason(err error) string {
	var runFailed *reconcile.RunFailedError
	if errors.As(err, &runFailed) {
		return runFailed.Reason
	}

	var httpErr *engine.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Status {
		case http.StatusUnauthorized:
			return "workflow engine rejected credentials; review engine configuration"
		case http.StatusNotFound:
			return "workflow not found on engine; review workflow configuration"
		default:
			return fmt.Sprintf("workflow engine error (status %d)", httpErr.Status)
		}
	}

	var autoErr *automation.HTTPError
	if errors.As(err, &autoErr) {
		switch autoErr.Status {
		case http.StatusUnauthorized:
			return "automation platform rejected credentials; review configuration"
		case http.StatusNotFound:
			return "automation webhook not found; review configuration"
		default:
			return fmt.Sprintf("automation platform error (status %d)", autoErr.Status)
		}
	}

	switch {
	case errors.Is(err, engine.ErrEngineTimeout), errors.Is(err, automation.ErrPlatformTimeout):
		return "external call timed out before the workflow finished"
	case errors.Is(err, engine.ErrEngineUnreachable), errors.Is(err, automation.ErrPlatformUnreachable):
		return "external service unreachable"
	default:
		return err.Error()
	}
}

// failureClass buckets upstream failures for metrics.
func failureClass(err error) string {
	var httpErr *engine.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Status == http.StatusUnauthorized || httpErr.Status == http.StatusNotFound {
			return "misconfigured"
		}
		return "http_error"
	}
	var autoErr *automation.HTTPError
	if errors.As(err, &autoErr) {
		if autoErr.Status == http.StatusUnauthorized || autoErr.Status == http.StatusNotFound {
			return "misconfigured"
		}
		return "http_error"
	}
	switch {
	case errors.Is(err, engine.ErrEngineTimeout), errors.Is(err, automation.ErrPlatformTimeout):
		return "timeout"
	case errors.Is(err, engine.ErrEngineUnreachable), errors.Is(err, automation.ErrPlatformUnreachable):
		return "unreachable"
	case errors.Is(err, reconcile.ErrRunNotStarted),
		errors.Is(err, reconcile.ErrInvalidFormat),
		errors.Is(err, reconcile.ErrNoOutputs):
		return "malformed_response"
	default:
		var runFailed *reconcile.RunFailedError
		if errors.As(err, &runFailed) {
			return "run_failed"
		}
		return "other"
	}
}
