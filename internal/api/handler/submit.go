package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	mw "github.com/SimonPP123/verto-digital-app-sub002/internal/api/middleware"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/api/response"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/automation"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/engine"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/reconcile"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/requests"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/store"
)

// Submitter defines the interface the submit handler depends on.
type Submitter interface {
	Submit(ctx context.Context, params requests.SubmitParams) (*requests.SubmitResult, error)
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/requests.
// The call blocks until the request reaches a terminal state, so a success
// response already carries the outputs; other observers may poll meanwhile.
func NewSubmitHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
			return
		}

		var req struct {
			RequestID string         `json:"request_id"`
			Type      string         `json:"type"`
			Payload   map[string]any `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Type == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "type is required", nil)
			return
		}

		var requestID *uuid.UUID
		if req.RequestID != "" {
			id, err := uuid.Parse(req.RequestID)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "request_id must be a valid UUID", nil)
				return
			}
			requestID = &id
		}

		result, err := svc.Submit(r.Context(), requests.SubmitParams{
			OwnerID:   ownerID,
			RequestID: requestID,
			Type:      req.Type,
			Payload:   req.Payload,
		})
		if err != nil {
			writeSubmitError(w, err)
			return
		}

		response.JSON(w, submitResponse{
			ID:      result.Request.ID.String(),
			Type:    result.Request.Type,
			Status:  result.Request.Status,
			Outputs: result.Outputs,
			Saved:   result.Saved,
		})
	}
}

// writeSubmitError maps submission failures onto the error taxonomy. Every
// failure here has already left the request in a terminal state.
func writeSubmitError(w http.ResponseWriter, err error) {
	var runFailed *reconcile.RunFailedError
	var engineHTTP *engine.HTTPError
	var autoHTTP *automation.HTTPError

	switch {
	case errors.Is(err, requests.ErrInvalidPayload):
		response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED",
			"Request payload does not match the expected shape", err.Error())

	case errors.Is(err, store.ErrAlreadyProcessing):
		w.Header().Set("Retry-After", "5")
		response.Error(w, http.StatusTooManyRequests, "REQUEST_IN_PROGRESS",
			"Previous request still processing", nil)

	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Request not found", nil)

	case errors.As(err, &runFailed):
		response.Error(w, http.StatusUnprocessableEntity, "WORKFLOW_FAILED",
			runFailed.Reason, nil)

	case errors.Is(err, engine.ErrEngineTimeout), errors.Is(err, automation.ErrPlatformTimeout):
		response.Error(w, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT",
			"The external workflow took too long and was abandoned", nil)

	case errors.As(err, &engineHTTP):
		if engineHTTP.Status == http.StatusUnauthorized || engineHTTP.Status == http.StatusNotFound {
			response.Error(w, http.StatusBadGateway, "UPSTREAM_MISCONFIGURED",
				"The workflow engine rejected the request; review engine configuration", nil)
			return
		}
		response.Error(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE",
			"The workflow engine is not available", nil)

	case errors.As(err, &autoHTTP):
		if autoHTTP.Status == http.StatusUnauthorized || autoHTTP.Status == http.StatusNotFound {
			response.Error(w, http.StatusBadGateway, "UPSTREAM_MISCONFIGURED",
				"The automation platform rejected the request; review configuration", nil)
			return
		}
		response.Error(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE",
			"The automation platform is not available", nil)

	case errors.Is(err, engine.ErrEngineUnreachable), errors.Is(err, automation.ErrPlatformUnreachable):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE",
			"The external service is not reachable", nil)

	case errors.Is(err, reconcile.ErrRunNotStarted),
		errors.Is(err, reconcile.ErrInvalidFormat),
		errors.Is(err, reconcile.ErrNoOutputs):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_INVALID_RESPONSE",
			"The workflow engine returned an unusable response", nil)

	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

type submitResponse struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Status  string         `json:"status"`
	Outputs map[string]any `json:"outputs"`
	Saved   bool           `json:"saved"`
}
