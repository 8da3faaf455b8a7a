package model

import "time"

// APIKey represents a bearer credential for the proxied node action.
// KeyValue is a UUID v4 string; it is immutable after creation and only
// the Enabled flag may change.
type APIKey struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	KeyValue  string    `json:"key_value"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// KeyRequest is one audit record for a successful proxied action.
// Rows are append-only; they are never mutated or deleted except by the
// schema-level cascade when the owning key is removed.
type KeyRequest struct {
	ID          string    `json:"id"`
	APIKeyID    string    `json:"api_key_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// KeyWithRequests pairs a key with its usage history, as produced by the
// left-join listing. Keys with no recorded usage carry an empty slice.
type KeyWithRequests struct {
	KeyValue  string       `json:"key_value"`
	Enabled   bool         `json:"enabled"`
	CreatedAt time.Time    `json:"created_at"`
	Requests  []KeyRequest `json:"requests"`
}
