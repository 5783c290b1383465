package arbor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/cache"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/exec"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/limits"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/retry"
)

// Engine is the high-level entry point for the Arbor library. It binds one
// validated graph to a store, cache, and concurrency budget, and runs
// executions of that graph as durable, resumable handles.
type Engine struct {
	graph    *graph.Graph
	store    ports.ExecutionStore
	cache    ports.ResultCache
	invoker  ports.Invoker
	locker   ports.DistributedLocker
	manager  *exec.Manager
	budget   limits.Budget
	policy   *retry.Policy
	strategy domain.MergeStrategy
	combiner domain.Combiner
	cacheTTL time.Duration
	hooks    []domain.LifecycleHooks
	logger   *slog.Logger

	executor *runtime.Executor

	mu      sync.Mutex
	running map[string]*Handle
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the execution store. Defaults to an in-memory store, which
// is ephemeral; production engines should use the badger or another durable
// adapter.
func WithStore(store ports.ExecutionStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithCache sets the result cache. Defaults to an in-memory LRU.
func WithCache(c ports.ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithInvoker sets the external provider client used by nodes that call out.
func WithInvoker(inv ports.Invoker) Option {
	return func(e *Engine) { e.invoker = inv }
}

// WithLocker enables distributed execution ownership across engine replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithLimits derives the concurrency budget from provider configuration.
func WithLimits(cfg limits.Config) Option {
	return func(e *Engine) { e.budget = limits.Compute(cfg) }
}

// WithBudget sets a precomputed concurrency budget.
func WithBudget(b limits.Budget) Option {
	return func(e *Engine) { e.budget = b }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithMergeStrategy sets the batch merge policy. Defaults to MergeAllSuccess.
func WithMergeStrategy(s domain.MergeStrategy) Option {
	return func(e *Engine) { e.strategy = s }
}

// WithCombiner sets the MAJORITY combiner.
func WithCombiner(c domain.Combiner) Option {
	return func(e *Engine) { e.combiner = c }
}

// WithCacheTTL bounds the lifetime of cached node results. Zero means no
// expiry.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.cacheTTL = ttl }
}

// WithLifecycleHooks registers observability hooks. May be given more than
// once; all hook sets receive every event.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, hooks) }
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New initializes an Engine for the given graph.
func New(g *graph.Graph, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil graph", domain.ErrGraphInvalid)
	}

	e := &Engine{
		graph:    g,
		budget:   limits.Compute(limits.Config{}), // conservative until configured
		strategy: domain.MergeAllSuccess,
		running:  make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.cache == nil {
		e.cache = cache.NewMemory()
	}
	if e.policy == nil {
		e.policy = retry.NewPolicy()
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	e.logger = e.logger.With("graph", g.Name())

	managerOpts := []exec.Option{exec.WithLogger(e.logger)}
	if e.locker != nil {
		managerOpts = append(managerOpts, exec.WithLocker(e.locker))
	}
	e.manager = exec.NewManager(e.store, managerOpts...)

	e.executor = runtime.NewExecutor(runtime.Config{
		Graph:     g,
		Store:     e.store,
		Cache:     e.cache,
		Invoker:   e.invoker,
		Admission: limits.NewAdmission(e.budget),
		Policy:    e.policy,
		Strategy:  e.strategy,
		Combiner:  e.combiner,
		CacheTTL:  e.cacheTTL,
		Hooks:     domain.CombineHooks(e.hooks...),
		Logger:    e.logger,
	})
	return e, nil
}

// Budget returns the concurrency budget this engine enforces.
func (e *Engine) Budget() limits.Budget { return e.budget }

// Execute starts a new execution of the engine's graph from the given initial
// state and returns a handle tracking it. The initial snapshot is durable
// before the first node runs.
func (e *Engine) Execute(ctx context.Context, initial domain.GraphState) (*Handle, error) {
	state, err := initial.Clone()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	initialCopy, err := initial.Clone()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	snap := &domain.Snapshot{
		ExecutionID:  uuid.NewString(),
		GraphName:    e.graph.Name(),
		State:        state,
		InitialState: initialCopy,
		Status:       domain.StatusRunning,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := e.manager.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}

	return e.launch(snap, nil), nil
}

// Resume continues a previously started execution from its last durable
// snapshot. Resuming a completed execution returns a handle that is already
// done, carrying the original terminal result; no node re-executes.
func (e *Engine) Resume(ctx context.Context, executionID string) (*Handle, error) {
	e.mu.Lock()
	if h, ok := e.running[executionID]; ok {
		e.mu.Unlock()
		return h, nil
	}
	e.mu.Unlock()

	snap, err := e.manager.Load(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if snap.Status == domain.StatusCompleted {
		return completedHandle(snap), nil
	}

	snap.Status = domain.StatusRunning
	snap.UpdatedAt = time.Now().UTC()
	if err := e.manager.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}
	return e.launch(snap, nil), nil
}

// Replay re-executes a completed execution as a fresh record referencing the
// original. If the replayed output diverges from the original, the new record
// is flagged for determinism audit; divergence is logged, never hidden.
func (e *Engine) Replay(ctx context.Context, originalID string) (*Handle, error) {
	original, err := e.manager.Load(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if original.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: replay requires a completed execution, %s is %s",
			domain.ErrValidation, originalID, original.Status)
	}

	state, err := original.InitialState.Clone()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	initialCopy, err := original.InitialState.Clone()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	snap := &domain.Snapshot{
		ExecutionID:  uuid.NewString(),
		GraphName:    e.graph.Name(),
		State:        state,
		InitialState: initialCopy,
		Status:       domain.StatusRunning,
		UpdatedAt:    time.Now().UTC(),
		Replay:       true,
		OriginalID:   originalID,
	}
	if err := e.manager.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}

	// The lineage opens the new record's provenance chain, so the link to the
	// original survives even if the replay dies before finishing.
	if _, err := e.store.AppendProvenance(ctx, snap.ExecutionID, domain.ProvenanceEntry{
		Kind:      domain.ProvenanceReplay,
		Detail:    "replay of " + originalID,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}

	return e.launch(snap, original), nil
}

// History returns the full record of an execution: latest snapshot plus the
// ordered provenance chain. It reads the store directly rather than going
// through the per-execution lock, so a record stays inspectable while its
// execution is still running; stores serialize appends internally.
func (e *Engine) History(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	return e.store.History(ctx, executionID)
}

// Cancel signals the in-flight execution to abort cooperatively at its next
// suspension point. State persisted through the last completed node stays
// valid and resumable. Cancelling an execution not running on this engine
// returns ErrExecutionNotFound.
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	e.mu.Lock()
	h, ok := e.running[executionID]
	e.mu.Unlock()
	if !ok {
		return domain.ErrExecutionNotFound
	}
	h.cancel()
	return nil
}

// List returns the known execution IDs.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	return e.manager.List(ctx)
}

// Delete removes an execution and its provenance from the store.
func (e *Engine) Delete(ctx context.Context, executionID string) error {
	return e.manager.Delete(ctx, executionID)
}

// InvalidateCache removes cached node results matching the glob pattern and
// returns the count removed. Use cache.NodePrefix(nodeID) to target one
// node's entries across versions.
func (e *Engine) InvalidateCache(ctx context.Context, pattern string) (int, error) {
	return e.cache.Invalidate(ctx, pattern)
}

// launch runs the execution on its own goroutine under the per-execution
// lock. original is non-nil for replays.
func (e *Engine) launch(snap *domain.Snapshot, original *domain.Snapshot) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ExecutionID: snap.ExecutionID,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	e.mu.Lock()
	e.running[snap.ExecutionID] = h
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.running, snap.ExecutionID)
			e.mu.Unlock()
			cancel()
		}()

		var final *domain.Snapshot
		runErr := e.manager.WithLock(ctx, snap.ExecutionID, func(ctx context.Context) error {
			var err error
			final, err = e.executor.Run(ctx, snap)
			return err
		})
		if final == nil {
			final = snap
		}

		if original != nil && final.Status == domain.StatusCompleted {
			e.auditReplay(final, original)
		}

		h.finish(final, runErr)
	}()
	return h
}

// auditReplay compares a replay's output against the original and flags
// divergence on the replay's durable record.
func (e *Engine) auditReplay(replayed, original *domain.Snapshot) {
	ctx := context.Background()
	if statesEqual(replayed, original) {
		return
	}

	e.logger.Warn("replay diverged from original",
		"execution_id", replayed.ExecutionID, "original_id", original.ExecutionID)
	if _, err := e.store.AppendProvenance(ctx, replayed.ExecutionID, domain.ProvenanceEntry{
		Kind:      domain.ProvenanceAnomaly,
		Detail:    "replay output diverged from " + original.ExecutionID,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		e.logger.Warn("provenance append failed", "execution_id", replayed.ExecutionID, "err", err)
	}

	replayed.DeterminismFlagged = true
	replayed.UpdatedAt = time.Now().UTC()
	if err := e.manager.Save(ctx, replayed); err != nil {
		e.logger.Warn("failed to persist determinism flag",
			"execution_id", replayed.ExecutionID, "err", err)
	}
}

// statesEqual compares final output through canonical serialization, the same
// representation the determinism guarantee is defined over.
func statesEqual(a, b *domain.Snapshot) bool {
	rawA, errA := a.State.Marshal()
	rawB, errB := b.State.Marshal()
	if errA != nil || errB != nil || !bytes.Equal(rawA, rawB) {
		return false
	}
	termA, errA := domain.GraphState{"t": a.Terminal}.Marshal()
	termB, errB := domain.GraphState{"t": b.Terminal}.Marshal()
	return errA == nil && errB == nil && bytes.Equal(termA, termB)
}

// Handle tracks one running execution. It transitions from running to exactly
// one of suspended, failed, or completed.
type Handle struct {
	ExecutionID string

	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	snap *domain.Snapshot
	err  error
}

func completedHandle(snap *domain.Snapshot) *Handle {
	h := &Handle{
		ExecutionID: snap.ExecutionID,
		cancel:      func() {},
		done:        make(chan struct{}),
	}
	h.finish(snap, nil)
	return h
}

func (h *Handle) finish(snap *domain.Snapshot, err error) {
	h.mu.Lock()
	h.snap = snap
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Done is closed when the execution reaches a terminal handle status.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Status reports the handle's current lifecycle state.
func (h *Handle) Status() domain.ExecutionStatus {
	select {
	case <-h.done:
	default:
		return domain.StatusRunning
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap.Status
}

// Wait blocks until the execution finishes or ctx expires, returning the last
// durable snapshot. For failed executions the snapshot carries the classified
// error and identifies the state available for inspection or manual resume.
func (h *Handle) Wait(ctx context.Context) (*domain.Snapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap, h.err
}
