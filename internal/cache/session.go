package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedSessionPrefix = "session:revoked:"

// RevokeSession marks a session token id as revoked until its natural
// expiry. A zero or negative ttl is clamped to one second so the key
// still lands in Redis.
func (c *Cache) RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	key := revokedSessionPrefix + tokenID
	if err := c.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsSessionRevoked reports whether the given token id has been revoked.
func (c *Cache) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	key := revokedSessionPrefix + tokenID
	_, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return true, nil
}
