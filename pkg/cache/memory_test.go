package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/cache"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

func TestMemoryCache_Contract(t *testing.T) {
	now := time.Now()
	c := cache.NewMemory(cache.WithClock(func() time.Time { return now }))
	ports.RunResultCacheContract(t, c, func(d time.Duration) { now = now.Add(d) })
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory(cache.WithCapacity(2))

	result := &domain.NodeResult{NodeID: "n", Status: domain.ResultSuccess}
	require.NoError(t, c.Set(ctx, "a", result, 0))
	require.NoError(t, c.Set(ctx, "b", result, 0))

	// Touch "a" so "b" becomes least recently used.
	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "c", result, 0))
	assert.Equal(t, 2, c.Len())

	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryCache_UpdateDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory(cache.WithCapacity(2))

	result := &domain.NodeResult{NodeID: "n", Status: domain.ResultSuccess}
	require.NoError(t, c.Set(ctx, "a", result, 0))
	require.NoError(t, c.Set(ctx, "b", result, 0))
	require.NoError(t, c.Set(ctx, "a", result, 0)) // overwrite, not a new entry

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "b")
	assert.True(t, ok)
}

func TestMemoryCache_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()

	keys := []string{"k0", "k1", "k2", "k3"}
	for _, key := range keys {
		require.NoError(t, c.Set(ctx, key, &domain.NodeResult{NodeID: key, Status: domain.ResultSuccess}, 0))
	}

	// Many readers over the same working set, with writers churning alongside.
	// Run with -race; a torn read or serialization bug surfaces here.
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := keys[(w+i)%len(keys)]
				res, ok, err := c.Get(ctx, key)
				assert.NoError(t, err)
				if assert.True(t, ok) {
					assert.Equal(t, key, res.NodeID)
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			key := keys[i%len(keys)]
			assert.NoError(t, c.Set(ctx, key, &domain.NodeResult{NodeID: key, Status: domain.ResultSuccess}, 0))
		}
	}()
	wg.Wait()

	assert.Equal(t, len(keys), c.Len())
}

func TestKeyStableAndSensitive(t *testing.T) {
	inputs := domain.GraphState{"b": 2, "a": 1}
	same := domain.GraphState{"a": 1, "b": 2} // insertion order must not matter

	k1, err := cache.Key("node", inputs, "v1")
	require.NoError(t, err)
	k2, err := cache.Key("node", same, "v1")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	differentInputs, err := cache.Key("node", domain.GraphState{"a": 1, "b": 3}, "v1")
	require.NoError(t, err)
	assert.NotEqual(t, k1, differentInputs)

	differentVersion, err := cache.Key("node", inputs, "v2")
	require.NoError(t, err)
	assert.NotEqual(t, k1, differentVersion)

	differentNode, err := cache.Key("other", inputs, "v1")
	require.NoError(t, err)
	assert.NotEqual(t, k1, differentNode)
}

func TestNodePrefixMatchesAllVersions(t *testing.T) {
	k1, err := cache.Key("summarize", domain.GraphState{"x": 1}, "v1")
	require.NoError(t, err)
	k2, err := cache.Key("summarize", domain.GraphState{"x": 2}, "v7")
	require.NoError(t, err)
	other, err := cache.Key("fetch", domain.GraphState{"x": 1}, "v1")
	require.NoError(t, err)

	pattern := cache.NodePrefix("summarize")
	assert.True(t, cache.MatchPattern(pattern, k1))
	assert.True(t, cache.MatchPattern(pattern, k2))
	assert.False(t, cache.MatchPattern(pattern, other))
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"exact", "exact", true},
		{"exact", "exact:more", false},
		{"node:*", "node:v1:abc", true},
		{"node:*", "other:v1:abc", false},
		{"*:v1:*", "node:v1:abc", true},
		{"*:v2:*", "node:v1:abc", false},
		{"*", "anything", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cache.MatchPattern(tt.pattern, tt.key),
			"pattern %q against %q", tt.pattern, tt.key)
	}
}
