package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultCapacity bounds the in-memory cache when none is configured.
const DefaultCapacity = 1024

// Entry is one cached result with its eviction metadata.
type Entry struct {
	Key       string
	Value     []byte // serialized NodeResult; decoded on Get
	CreatedAt time.Time
	TTL       time.Duration
	Version   string
}

func (e *Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

// Memory implements ports.ResultCache in process memory with LRU eviction at
// capacity and TTL expiry.
//
// Lookups take a shared read lock, so reads never block on other reads; all
// mutation, including the LRU recency touch that follows a hit, takes the
// exclusive lock. A read racing a write observes either the old or the new
// value, never a torn one, because values are immutable byte slices swapped
// whole under the exclusive lock.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // Front = most recent, Back = least recent

	now    func() time.Time
	logger *slog.Logger
}

// MemoryOption configures the Memory cache.
type MemoryOption func(*Memory)

// WithCapacity sets the LRU capacity.
func WithCapacity(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// WithClock injects a time source. Tests use this to simulate TTL expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// WithLogger configures a logger for eviction events.
func WithLogger(logger *slog.Logger) MemoryOption {
	return func(m *Memory) {
		m.logger = logger
	}
}

// NewMemory creates an in-memory result cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		capacity: DefaultCapacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached result for the key. Expired entries are removed
// lazily. A corrupt entry is evicted and reported as a miss; corruption never
// propagates to the caller.
func (m *Memory) Get(ctx context.Context, key string) (*domain.NodeResult, bool, error) {
	m.mu.RLock()
	el, ok := m.items[key]
	if !ok {
		m.mu.RUnlock()
		return nil, false, nil
	}
	entry := el.Value.(*Entry)
	raw := entry.Value
	expired := entry.expired(m.now())
	m.mu.RUnlock()

	if expired {
		m.evict(key)
		return nil, false, nil
	}

	var result domain.NodeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		m.logger.Warn("evicting corrupt cache entry", "key", key, "err", err)
		m.evict(key)
		return nil, false, nil
	}

	m.touch(key)
	return &result, true, nil
}

// touch records recency for a hit. It runs outside the read section so
// lookups of distinct keys proceed fully in parallel.
func (m *Memory) touch(key string) {
	m.mu.Lock()
	if el, ok := m.items[key]; ok {
		m.order.MoveToFront(el)
	}
	m.mu.Unlock()
}

// evict removes a key if it is still present; the entry may already have been
// replaced or invalidated since the read.
func (m *Memory) evict(key string) {
	m.mu.Lock()
	if el, ok := m.items[key]; ok {
		m.removeLocked(el)
	}
	m.mu.Unlock()
}

// Set stores the result under the key. At capacity, the least recently used
// entry is evicted first.
func (m *Memory) Set(ctx context.Context, key string, result *domain.NodeResult, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		el.Value = &Entry{Key: key, Value: raw, CreatedAt: m.now(), TTL: ttl}
		m.order.MoveToFront(el)
		return nil
	}

	for m.order.Len() >= m.capacity {
		back := m.order.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(*Entry)
		m.removeLocked(back)
		m.logger.Debug("lru eviction", "key", evicted.Key)
	}

	el := m.order.PushFront(&Entry{Key: key, Value: raw, CreatedAt: m.now(), TTL: ttl})
	m.items[key] = el
	return nil
}

// Invalidate removes entries matching the glob-style pattern and returns the
// count removed.
func (m *Memory) Invalidate(ctx context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key, el := range m.items {
		if MatchPattern(pattern, key) {
			m.removeLocked(el)
			count++
		}
	}
	return count, nil
}

// Len returns the number of live entries, counting expired ones not yet
// lazily removed.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.order.Len()
}

func (m *Memory) removeLocked(el *list.Element) {
	entry := el.Value.(*Entry)
	m.order.Remove(el)
	delete(m.items, entry.Key)
}

// MatchPattern matches a key against a glob pattern: literal text with '*'
// matching any run of characters. Shared by the memory and Redis caches so
// Invalidate semantics stay identical across adapters.
func MatchPattern(pattern, key string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == key
	}

	if !strings.HasPrefix(key, parts[0]) {
		return false
	}
	key = key[len(parts[0]):]

	last := parts[len(parts)-1]
	for _, mid := range parts[1 : len(parts)-1] {
		if mid == "" {
			continue
		}
		idx := strings.Index(key, mid)
		if idx < 0 {
			return false
		}
		key = key[idx+len(mid):]
	}

	return strings.HasSuffix(key, last)
}
