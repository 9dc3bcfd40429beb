package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/SimonPP123/verto-digital-app-sub002/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrAlreadyProcessing = errors.New("request already processing")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultUser(ctx context.Context) (*models.User, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateRequest(ctx context.Context, req *models.Request) error
	GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error)
	UpdateRequestPayload(ctx context.Context, id uuid.UUID, payload map[string]any) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]*models.Request, int, error)
	DeleteRequest(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error

	// SetProcessing is the gate entry: a single conditional update that moves
	// an idle/completed/error request into processing and clears any prior
	// result or error in the same statement. Returns ErrAlreadyProcessing if
	// the request is mid-flight, ErrNotFound if it does not exist.
	SetProcessing(ctx context.Context, id uuid.UUID) error
	CompleteRequest(ctx context.Context, id uuid.UUID, result map[string]any) error
	FailRequest(ctx context.Context, id uuid.UUID, reason string) error

	// ReleaseStuck forces requests that have sat in processing since before
	// cutoff into the error state. Returns the number of requests released.
	ReleaseStuck(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}

type RequestFilter struct {
	OwnerID uuid.UUID
	Type    string
	Status  string
	Page    int
	Limit   int
}
