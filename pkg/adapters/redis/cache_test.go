package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/ports"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisCache_Contract(t *testing.T) {
	mr, client := newTestClient(t)

	cache := redis.NewCache(client)
	ports.RunResultCacheContract(t, cache, func(d time.Duration) {
		mr.FastForward(d)
	})
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	mr, client := newTestClient(t)
	cache := redis.NewCache(client)
	ctx := context.Background()

	// Plant garbage directly under the cache's key prefix.
	require.NoError(t, mr.Set("arbor:cache:bad-key", "{not json"))

	_, ok, err := cache.Get(ctx, "bad-key")
	require.NoError(t, err)
	assert.False(t, ok)

	// The corrupt entry must have been evicted.
	assert.False(t, mr.Exists("arbor:cache:bad-key"))
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	_, client := newTestClient(t)
	locker := redis.NewLocker(client, "arbor:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "exec-1", 10*time.Second)
	require.NoError(t, err)

	// A second acquire must block until the first holder releases.
	blocked, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(blocked, "exec-1", 10*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))

	unlock2, err := locker.Lock(ctx, "exec-1", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestRedisLocker_UnlockIsOwnerOnly(t *testing.T) {
	mr, client := newTestClient(t)
	locker := redis.NewLocker(client, "arbor:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "exec-2", 1*time.Second)
	require.NoError(t, err)

	// Simulate expiry and takeover by another replica.
	mr.FastForward(2 * time.Second)
	unlock2, err := locker.Lock(ctx, "exec-2", 10*time.Second)
	require.NoError(t, err)

	// The stale holder's release must not delete the new holder's lock.
	require.NoError(t, unlock(ctx))
	blocked, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(blocked, "exec-2", 10*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock2(ctx))
}
