package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/SimonPP123/verto-digital-app-sub002/internal/api/middleware"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/api/response"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/requests"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/store"
)

// Poller defines the interface the status handler depends on.
type Poller interface {
	Status(ctx context.Context, requestID uuid.UUID, ownerID uuid.UUID) (*requests.StatusView, error)
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/v1/requests/{requestID}.
// This is the poll endpoint: clients call it until they observe a terminal
// status. Reads never contend with the submission gate.
func NewStatusHandler(svc Poller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
			return
		}

		requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "requestID must be a valid UUID", nil)
			return
		}

		view, err := svc.Status(r.Context(), requestID, ownerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Request not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, view)
	}
}
