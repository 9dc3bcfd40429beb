package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/SimonPP123/verto-digital-app-sub002/internal/api/middleware"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/api/response"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/store"
)

// Deleter defines the interface the delete handler depends on.
type Deleter interface {
	Delete(ctx context.Context, requestID uuid.UUID, ownerID uuid.UUID) error
}

// NewDeleteHandler returns an http.HandlerFunc for DELETE /api/v1/requests/{requestID}.
func NewDeleteHandler(svc Deleter) http.HandlerFunc {
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

		if err := svc.Delete(r.Context(), requestID, ownerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Request not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.NoContent(w)
	}
}
