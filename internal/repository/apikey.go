package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nodegate/nodegate/internal/model"
)

// Common errors for API key repository operations.
var (
	ErrAPIKeyNotFound = errors.New("API key not found")
)

// CreateAPIKey inserts a new API key into the database.
// The caller must have resolved the owning user first; a dangling user id
// fails the foreign key constraint.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, key_value, enabled, created_at)
		VALUES ($1, $2, $3::uuid, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		key.ID,
		key.UserID,
		key.KeyValue,
		key.Enabled,
		key.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// GetAPIKeyByValue retrieves an API key by its bearer value.
func (r *Repository) GetAPIKeyByValue(ctx context.Context, keyValue string) (*model.APIKey, error) {
	query := `
		SELECT id, user_id, key_value::text, enabled, created_at
		FROM api_keys
		WHERE key_value = $1::uuid
	`

	var key model.APIKey
	err := r.pool.QueryRow(ctx, query, keyValue).Scan(
		&key.ID,
		&key.UserID,
		&key.KeyValue,
		&key.Enabled,
		&key.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	return &key, nil
}

// ListKeysWithRequests retrieves every key for a user paired with its usage
// records. A left outer join keeps keys with zero usage in the result; rows
// are grouped per key on the way out.
func (r *Repository) ListKeysWithRequests(ctx context.Context, userID string) ([]model.KeyWithRequests, error) {
	query := `
		SELECT k.key_value::text, k.enabled, k.created_at,
		       kr.id, kr.requested_at
		FROM api_keys k
		LEFT JOIN key_requests kr ON kr.api_key_id = k.id
		WHERE k.user_id = $1
		ORDER BY k.created_at DESC, kr.requested_at ASC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with requests: %w", err)
	}
	defer rows.Close()

	var (
		result []model.KeyWithRequests
		index  = map[string]int{}
	)

	for rows.Next() {
		var (
			entry       model.KeyWithRequests
			requestID   *string
			requestedAt *time.Time
		)

		if err := rows.Scan(&entry.KeyValue, &entry.Enabled, &entry.CreatedAt, &requestID, &requestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan key listing row: %w", err)
		}

		pos, seen := index[entry.KeyValue]
		if !seen {
			entry.Requests = []model.KeyRequest{}
			result = append(result, entry)
			pos = len(result) - 1
			index[entry.KeyValue] = pos
		}

		if requestID != nil && requestedAt != nil {
			result[pos].Requests = append(result[pos].Requests, model.KeyRequest{
				ID:          *requestID,
				RequestedAt: *requestedAt,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key listing: %w", err)
	}

	return result, nil
}

// SetAPIKeyEnabled flips the enabled flag on a key.
// The flip is idempotent: setting a flag to its current value still matches
// the row and reports success. Returns ErrAPIKeyNotFound when no key has
// the given value.
func (r *Repository) SetAPIKeyEnabled(ctx context.Context, keyValue string, enabled bool) error {
	query := `
		UPDATE api_keys
		SET enabled = $2
		WHERE key_value = $1::uuid
	`

	result, err := r.pool.Exec(ctx, query, keyValue, enabled)
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

// DeleteAPIKey removes a key by value.
// Usage records referencing the key are removed by the schema cascade.
func (r *Repository) DeleteAPIKey(ctx context.Context, keyValue string) error {
	query := `
		DELETE FROM api_keys
		WHERE key_value = $1::uuid
	`

	result, err := r.pool.Exec(ctx, query, keyValue)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}
