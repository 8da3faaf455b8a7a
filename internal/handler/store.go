package handler

import (
	"context"
	"time"

	"github.com/nodegate/nodegate/internal/model"
)

// UserStore is the subset of the repository used by auth handlers.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// KeyLister lists a user's keys with their usage records. Split out of
// KeyStore because the login response needs the listing too.
type KeyLister interface {
	ListKeysWithRequests(ctx context.Context, userID string) ([]model.KeyWithRequests, error)
}

// KeyStore is the subset of the repository used by API key handlers.
type KeyStore interface {
	KeyLister
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByValue(ctx context.Context, keyValue string) (*model.APIKey, error)
	SetAPIKeyEnabled(ctx context.Context, keyValue string, enabled bool) error
	DeleteAPIKey(ctx context.Context, keyValue string) error
}

// UsageStore records API key usage.
type UsageStore interface {
	RecordKeyRequest(ctx context.Context, apiKeyID string) (*model.KeyRequest, error)
}

// KeyCache is the read-through cache in front of KeyStore lookups.
// GetAPIKey returns (nil, nil) on a miss.
type KeyCache interface {
	GetAPIKey(ctx context.Context, keyValue string) (*model.APIKey, error)
	SetAPIKey(ctx context.Context, key *model.APIKey) error
	DeleteAPIKey(ctx context.Context, keyValue string) error
}

// SessionRevoker revokes session token ids until their expiry.
type SessionRevoker interface {
	RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error
}
