// Package redis provides shared-infrastructure adapters backed by Redis: a
// result cache visible to every engine replica and a distributed lock for
// cross-replica execution ownership.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// Cache implements ports.ResultCache on Redis. Expiry is delegated to Redis
// TTLs; capacity is whatever the server's eviction policy allows.
type Cache struct {
	client *backend.Client
	prefix string
	logger *slog.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCachePrefix namespaces all keys, letting several engines share one
// Redis instance.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *Cache) { c.prefix = prefix }
}

// WithCacheLogger sets the logger for corruption events.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// NewCache creates a Redis-backed result cache.
func NewCache(client *backend.Client, opts ...CacheOption) *Cache {
	c := &Cache{
		client: client,
		prefix: "arbor:cache:",
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached result for the key. A corrupt entry is deleted and
// reported as a miss so it can never poison an execution.
func (c *Cache) Get(ctx context.Context, key string) (*domain.NodeResult, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get: %w", err)
	}

	var result domain.NodeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("evicting corrupt cache entry", "key", key, "err", err)
		_ = c.client.Del(ctx, c.prefix+key).Err()
		return nil, false, nil
	}
	return &result, true, nil
}

// Set stores the result under the key. A zero TTL stores without expiry.
func (c *Cache) Set(ctx context.Context, key string, result *domain.NodeResult, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis cache set: marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

// Invalidate removes entries matching the glob pattern via SCAN, returning
// the count removed. SCAN keeps the server responsive on large keyspaces.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	var removed int
	iter := c.client.Scan(ctx, 0, c.prefix+pattern, 100).Iterator()
	for iter.Next(ctx) {
		n, err := c.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return removed, fmt.Errorf("redis cache invalidate: %w", err)
		}
		removed += int(n)
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis cache invalidate: scan: %w", err)
	}
	return removed, nil
}
