package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nodegate/nodegate/internal/model"
)

// RecordKeyRequest appends one usage record for a key with the current UTC
// timestamp. The caller must have resolved the key first; rows in this table
// are never mutated or deleted by the application.
func (r *Repository) RecordKeyRequest(ctx context.Context, apiKeyID string) (*model.KeyRequest, error) {
	record := &model.KeyRequest{
		ID:          ulid.Make().String(),
		APIKeyID:    apiKeyID,
		RequestedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO key_requests (id, api_key_id, requested_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.pool.Exec(ctx, query,
		record.ID,
		record.APIKeyID,
		record.RequestedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to record key request: %w", err)
	}

	return record, nil
}

// CountKeyRequests returns the number of usage records for a key.
func (r *Repository) CountKeyRequests(ctx context.Context, apiKeyID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM key_requests
		WHERE api_key_id = $1
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, apiKeyID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count key requests: %w", err)
	}

	return count, nil
}
