package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dandi/dandi/internal/identity"
)

const (
	// identityCachePrefix is the Redis key prefix for resolved identities.
	identityCachePrefix = "session:ident:"
	// identityCacheTTL bounds how stale a cached resolution can get. A
	// cache hit skips the login upsert, so this is also the granularity
	// of last_login tracking.
	identityCacheTTL = 5 * time.Minute
)

// cachedIdentity represents a resolved identity stored in Redis.
type cachedIdentity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// GetIdentity retrieves a cached identity by session-token hash.
// Returns nil on a miss; misses are not errors.
func (c *Cache) GetIdentity(ctx context.Context, tokenHash string) (*identity.Identity, error) {
	key := identityCachePrefix + tokenHash

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, nil //nolint:nilerr
	}

	var cached cachedIdentity
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &identity.Identity{UserID: cached.UserID, Email: cached.Email}, nil
}

// SetIdentity caches a resolved identity.
func (c *Cache) SetIdentity(ctx context.Context, tokenHash string, ident *identity.Identity) error {
	key := identityCachePrefix + tokenHash

	data, err := json.Marshal(cachedIdentity{UserID: ident.UserID, Email: ident.Email})
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	return c.client.Set(ctx, key, data, identityCacheTTL).Err()
}

// DeleteIdentity evicts a cached identity, e.g. on logout.
func (c *Cache) DeleteIdentity(ctx context.Context, tokenHash string) error {
	return c.client.Del(ctx, identityCachePrefix+tokenHash).Err()
}
