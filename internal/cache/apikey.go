package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nodegate/nodegate/internal/auth"
	"github.com/nodegate/nodegate/internal/model"
)

const (
	apiKeyPrefix = "apikey:"
	apiKeyTTL    = 5 * time.Minute
)

func apiKeyCacheKey(keyValue string) string {
	// Keys are hashed so raw API key values never appear in Redis.
	return apiKeyPrefix + auth.QuickHash(keyValue)
}

// GetAPIKey returns a cached API key by its key value.
// Returns (nil, nil) on cache miss.
func (c *Cache) GetAPIKey(ctx context.Context, keyValue string) (*model.APIKey, error) {
	data, err := c.client.Get(ctx, apiKeyCacheKey(keyValue)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached API key: %w", err)
	}

	var key model.APIKey
	if err := json.Unmarshal(data, &key); err != nil {
		// Corrupt entry, treat as a miss and let the caller refresh it.
		return nil, nil
	}
	return &key, nil
}

// SetAPIKey caches an API key record under its key value.
func (c *Cache) SetAPIKey(ctx context.Context, key *model.APIKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to marshal API key: %w", err)
	}
	if err := c.client.Set(ctx, apiKeyCacheKey(key.KeyValue), data, apiKeyTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache API key: %w", err)
	}
	return nil
}

// DeleteAPIKey drops a cached API key entry. Call after any write that
// changes the key's state so a stale enabled flag cannot be served.
func (c *Cache) DeleteAPIKey(ctx context.Context, keyValue string) error {
	if err := c.client.Del(ctx, apiKeyCacheKey(keyValue)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached API key: %w", err)
	}
	return nil
}
