package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultLockTTL is the distributed lock lease for one guarded operation.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the lock channel and the reference count. The channel is a
// one-slot semaphore rather than a mutex so acquisition can honor the caller's
// context.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// Manager serializes access to individual executions. Within one process it
// hands out per-execution mutexes, garbage collected by reference counting;
// across replicas it optionally layers a distributed lock on top, so two
// engines can never run or mutate the same execution at once.
type Manager struct {
	store ports.ExecutionStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides the distributed lock lease.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates an execution manager over the given store.
func NewManager(store ports.ExecutionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// Callers must pair it with release(executionID).
func (m *Manager) acquire(executionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[executionID]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		m.locks[executionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches
// zero.
func (m *Manager) release(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[executionID]
	if !exists {
		return // should not happen if paired correctly
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, executionID)
	}
}

// Load retrieves an execution's latest snapshot under its lock.
func (m *Manager) Load(ctx context.Context, executionID string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, executionID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.LoadSnapshot(ctx, executionID)
		return err
	})
	return snap, err
}

// Save persists a snapshot under its execution's lock.
func (m *Manager) Save(ctx context.Context, snap *domain.Snapshot) error {
	return m.WithLock(ctx, snap.ExecutionID, func(ctx context.Context) error {
		return m.store.SaveSnapshot(ctx, snap)
	})
}

// History returns the full record for an execution.
func (m *Manager) History(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	var rec *domain.ExecutionRecord
	err := m.WithLock(ctx, executionID, func(ctx context.Context) error {
		var err error
		rec, err = m.store.History(ctx, executionID)
		return err
	})
	return rec, err
}

// Delete removes the execution from the store.
func (m *Manager) Delete(ctx context.Context, executionID string) error {
	return m.WithLock(ctx, executionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, executionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying execution store.
func (m *Manager) Store() ports.ExecutionStore {
	return m.store
}

// WithLock executes a function while holding the lock for the execution.
// Acquisition honors ctx: a caller with a deadline gets ctx.Err back instead
// of blocking behind a long-running execution.
func (m *Manager) WithLock(ctx context.Context, executionID string, fn func(context.Context) error) error {
	entry := m.acquire(executionID)
	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(executionID)
		return ctx.Err()
	}
	defer func() {
		<-entry.sem
		m.release(executionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, executionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"execution_id", executionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
