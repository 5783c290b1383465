package ports

import (
	"context"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// ResultCache defines the interface for the deterministic node-result cache.
//
// Keys are derived from (node identity, serialized inputs, version tag) by
// pkg/cache.Key; implementations treat them as opaque strings.
//
// Concurrency contract: writes are serialized; reads never block other reads;
// a read racing a write observes either the old or the new value atomically.
type ResultCache interface {
	// Get returns the cached result for the key, or ok=false when absent or
	// expired. A corrupt entry is evicted and reported as a miss.
	Get(ctx context.Context, key string) (*domain.NodeResult, bool, error)

	// Set stores the result under the key with the given TTL.
	// A zero TTL means no expiry.
	Set(ctx context.Context, key string, result *domain.NodeResult, ttl time.Duration) error

	// Invalidate removes entries whose key matches the glob-style pattern
	// (literal text with optional '*' wildcards) and returns the count removed.
	Invalidate(ctx context.Context, pattern string) (int, error)
}
