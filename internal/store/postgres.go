package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SimonPP123/verto-digital-app-sub002/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

func (s *PostgresStore) GetDefaultUser(ctx context.Context) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, created_at, updated_at FROM users WHERE email = 'admin@verto.local' LIMIT 1`,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default user: %w", err)
	}
	return &u, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Requests ---

const requestColumns = `id, owner_id, type, status, COALESCE(payload, '{}'::jsonb),
	 COALESCE(result, 'null'::jsonb), error_message, last_activity_at, created_at, updated_at`

func (s *PostgresStore) CreateRequest(ctx context.Context, req *models.Request) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO requests (id, owner_id, type, status, payload, last_activity_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.OwnerID, req.Type, req.Status, req.Payload, req.LastActivityAt, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	var r models.Request
	err := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1`, id,
	).Scan(&r.ID, &r.OwnerID, &r.Type, &r.Status, &r.Payload, &r.Result,
		&r.ErrorMessage, &r.LastActivityAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter RequestFilter) ([]*models.Request, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"owner_id = $1"}
	args := []any{filter.OwnerID}
	argIdx := 2

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, filter.Type)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	// Count query
	var total int
	countQuery := "SELECT COUNT(*) FROM requests WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	// Data query
	dataQuery := fmt.Sprintf(
		`SELECT `+requestColumns+` FROM requests WHERE %s ORDER BY last_activity_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var reqs []*models.Request
	for rows.Next() {
		var r models.Request
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Type, &r.Status, &r.Payload, &r.Result,
			&r.ErrorMessage, &r.LastActivityAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan request: %w", err)
		}
		reqs = append(reqs, &r)
	}
	return reqs, total, rows.Err()
}

func (s *PostgresStore) UpdateRequestPayload(ctx context.Context, id uuid.UUID, payload map[string]any) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests SET payload = $2, updated_at = NOW() WHERE id = $1`, id, payload)
	if err != nil {
		return fmt.Errorf("update request payload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteRequest(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM requests WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProcessing performs the idle/completed/error -> processing transition as
// one conditional UPDATE. The status predicate is the serialization point:
// of two submissions racing on the same request, exactly one statement
// matches a row and the loser sees zero rows affected.
func (s *PostgresStore) SetProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests
		 SET status = $2, result = NULL, error_message = NULL, last_activity_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status <> $2`,
		id, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("set processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check request exists: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAlreadyProcessing
	}
	return nil
}

func (s *PostgresStore) CompleteRequest(ctx context.Context, id uuid.UUID, result map[string]any) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests
		 SET status = $2, result = $3, error_message = NULL, last_activity_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		id, models.StatusCompleted, result)
	if err != nil {
		return fmt.Errorf("complete request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FailRequest(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests
		 SET status = $2, result = NULL, error_message = $3, last_activity_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		id, models.StatusError, reason)
	if err != nil {
		return fmt.Errorf("fail request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ReleaseStuck(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests
		 SET status = $2, result = NULL, error_message = $3, last_activity_at = NOW(), updated_at = NOW()
		 WHERE status = $4 AND last_activity_at < $1`,
		cutoff, models.StatusError, reason, models.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("release stuck requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
