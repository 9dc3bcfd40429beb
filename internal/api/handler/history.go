package handler

import (
	"context"
	"net/http"
	"strconv"

	mw "github.com/SimonPP123/verto-digital-app-sub002/internal/api/middleware"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/api/response"
	"github.com/SimonPP123/verto-digital-app-sub002/internal/store"
	"github.com/SimonPP123/verto-digital-app-sub002/pkg/models"
)

// Lister defines the interface the history handler depends on.
type Lister interface {
	List(ctx context.Context, filter store.RequestFilter) ([]*models.Request, int, error)
}

// NewListHandler returns an http.HandlerFunc for GET /api/v1/requests.
func NewListHandler(svc Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
			return
		}

		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		if page <= 0 {
			page = 1
		}
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		reqs, total, err := svc.List(r.Context(), store.RequestFilter{
			OwnerID: ownerID,
			Type:    q.Get("type"),
			Status:  q.Get("status"),
			Page:    page,
			Limit:   limit,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		if reqs == nil {
			reqs = []*models.Request{}
		}
		response.Collection(w, reqs, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}
