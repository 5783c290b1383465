// Package runtime contains the parallel executor: the batch scheduling loop
// that walks a graph from snapshot to snapshot. It is internal; callers drive
// it through the root package's Engine.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/cache"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/limits"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/retry"
)

// Config assembles an Executor's dependencies. Graph, Store and Admission are
// required; the rest default to no-ops.
type Config struct {
	Graph     *graph.Graph
	Store     ports.ExecutionStore
	Cache     ports.ResultCache
	Invoker   ports.Invoker
	Admission *limits.Admission
	Policy    *retry.Policy
	Strategy  domain.MergeStrategy
	Combiner  domain.Combiner
	CacheTTL  time.Duration
	Hooks     domain.LifecycleHooks
	Logger    *slog.Logger
}

// Executor runs one graph to completion in parallel batches. It is stateless
// between calls; all progress lives in the snapshot, which is what makes an
// execution resumable from any batch boundary.
type Executor struct {
	cfg Config
}

// NewExecutor creates an executor. Defaults: AllSuccess strategy, default
// retry policy, no-op logger.
func NewExecutor(cfg Config) *Executor {
	if cfg.Policy == nil {
		cfg.Policy = retry.NewPolicy()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = domain.MergeAllSuccess
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Executor{cfg: cfg}
}

// Run drives the execution from the given snapshot until the graph completes,
// a batch fails, or the context is cancelled. The snapshot is mutated in place
// and persisted at every batch boundary; the returned snapshot is always the
// last durable one.
func (e *Executor) Run(ctx context.Context, snap *domain.Snapshot) (*domain.Snapshot, error) {
	done := make(map[string]bool, len(snap.CompletedNodes))
	for _, id := range snap.CompletedNodes {
		done[id] = true
	}

	for {
		if ctx.Err() != nil {
			return e.suspend(ctx, snap)
		}

		batch := e.cfg.Graph.Ready(done)
		if len(batch) == 0 {
			// Every node resolved without a terminal value; the final state is
			// the result.
			return e.complete(ctx, snap, snap.Terminal)
		}

		results := e.runBatch(ctx, snap, batch)

		if ctx.Err() != nil {
			// Cancelled mid-batch. The batch's results are recorded for audit
			// but never merged; the snapshot stays at the last boundary.
			e.recordResults(ctx, snap.ExecutionID, results)
			return e.suspend(ctx, snap)
		}

		outcome := evaluate(e.cfg.Strategy, e.cfg.Combiner, results)
		e.recordResults(ctx, snap.ExecutionID, results)
		if err := e.recordMerge(ctx, snap.ExecutionID, len(results), outcome); err != nil {
			return snap, err
		}

		if outcome.err != nil {
			return e.fail(ctx, snap, outcome.err)
		}

		snap.State.Merge(outcome.delta)
		for _, n := range batch {
			done[n.ID()] = true
			snap.CompletedNodes = append(snap.CompletedNodes, n.ID())
		}

		if outcome.terminal != nil {
			return e.complete(ctx, snap, outcome.terminal)
		}

		snap.Status = domain.StatusRunning
		snap.UpdatedAt = time.Now().UTC()
		if err := e.cfg.Store.SaveSnapshot(ctx, snap); err != nil {
			// The previous snapshot is still intact; halt rather than run on
			// without durability.
			return snap, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
		}
	}
}

// runBatch dispatches every batch member concurrently and waits for all of
// them. Under FirstSuccess, the first success cancels its peers; they stop at
// their next suspension point.
func (e *Executor) runBatch(ctx context.Context, snap *domain.Snapshot, batch []graph.Node) []*domain.NodeResult {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*domain.NodeResult, len(batch))
	var g errgroup.Group
	for i, n := range batch {
		i, n := i, n
		g.Go(func() error {
			res := e.runNode(batchCtx, snap, n)
			results[i] = res
			if e.cfg.Strategy == domain.MergeFirstSuccess && res.Succeeded() {
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runNode executes one node through admission, cache, and retry. It always
// returns a NodeResult; errors are folded into it, never propagated, so a
// misbehaving node can fail its batch but not crash it.
func (e *Executor) runNode(ctx context.Context, snap *domain.Snapshot, n graph.Node) *domain.NodeResult {
	release, err := e.cfg.Admission.AcquireNode(ctx, n.CallsProvider())
	if err != nil {
		return failedResult(n.ID(), 1, err)
	}
	defer release()

	key := e.cacheKey(snap, n)
	if res, ok := e.cacheLookup(ctx, snap.ExecutionID, key, n.ID()); ok {
		return res
	}

	seq := e.cfg.Policy.NewSequence()
	for attempt := 1; ; attempt++ {
		res, runErr := e.attempt(ctx, snap, n, attempt)
		if runErr == nil {
			e.cacheStore(ctx, key, res)
			e.emitFinish(ctx, snap.ExecutionID, res)
			return res
		}

		if ctx.Err() != nil {
			// Parent cancelled (execution cancel or a FirstSuccess winner);
			// do not retry.
			return failedResult(n.ID(), attempt, runErr)
		}

		class := retry.Classify(runErr)
		if !e.cfg.Policy.Retryable(class, attempt) {
			e.cfg.Logger.Warn("node failed, escalating",
				"execution_id", snap.ExecutionID, "node", n.ID(),
				"attempt", attempt, "class", string(class), "err", runErr)
			res := failedResult(n.ID(), attempt, runErr)
			e.emitFinish(ctx, snap.ExecutionID, res)
			return res
		}

		backoff := seq.Next()
		e.cfg.Logger.Debug("retrying node",
			"execution_id", snap.ExecutionID, "node", n.ID(),
			"attempt", attempt, "class", string(class), "backoff", backoff)
		if e.cfg.Hooks.OnRetry != nil {
			e.cfg.Hooks.OnRetry(ctx, &domain.RetryEvent{
				ExecutionID: snap.ExecutionID,
				NodeID:      n.ID(),
				Attempt:     attempt,
				Class:       string(class),
				Backoff:     backoff,
			})
		}
		e.appendProvenance(ctx, snap.ExecutionID, domain.ProvenanceEntry{
			Kind:    domain.ProvenanceRetry,
			NodeID:  n.ID(),
			Attempt: attempt,
			Class:   string(class),
			Detail:  runErr.Error(),
		})

		select {
		case <-ctx.Done():
			return failedResult(n.ID(), attempt, ctx.Err())
		case <-time.After(backoff):
		}
	}
}

// attempt performs one invocation of the node against a fresh copy of the
// snapshot state. Retries always restart from here, so a failed attempt's
// mutations can never leak into the next one.
func (e *Executor) attempt(ctx context.Context, snap *domain.Snapshot, n graph.Node, attempt int) (*domain.NodeResult, error) {
	state, err := snap.State.Clone()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	ec := graph.NewExecutionContext(snap.ExecutionID, state, e.cfg.Cache, e.cfg.Store, e.cfg.Invoker, e.cfg.Admission)

	timeout := n.Timeout()
	if timeout <= 0 {
		timeout = graph.DefaultNodeTimeout
	}
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now().UTC()
	if e.cfg.Hooks.OnNodeStart != nil {
		e.cfg.Hooks.OnNodeStart(ctx, &domain.NodeEvent{
			ExecutionID: snap.ExecutionID,
			NodeID:      n.ID(),
			Attempt:     attempt,
			Timestamp:   started,
		})
	}

	res, runErr := e.invoke(nodeCtx, ec, n)
	duration := time.Since(started)

	if runErr == nil && res == nil {
		runErr = fmt.Errorf("%w: node %s returned no result", domain.ErrValidation, n.ID())
	}
	if runErr == nil && res.Status == domain.ResultFailed {
		runErr = errors.New(res.Error)
	}
	if runErr == nil {
		runErr = e.checkFootprint(n, res)
	}
	if runErr != nil {
		// A node timeout surfaces here as context.DeadlineExceeded.
		if nodeCtx.Err() != nil && ctx.Err() == nil {
			runErr = nodeCtx.Err()
		}
		return nil, &domain.NodeError{NodeID: n.ID(), Attempt: attempt, Err: runErr}
	}

	res.NodeID = n.ID()
	if res.Status == "" {
		res.Status = domain.ResultSuccess
	}
	res.Attempt = attempt
	res.StartedAt = started
	res.Duration = duration
	res.Usage = ec.Usage()
	return res, nil
}

// invoke calls the node, converting a panic into an error. A misbehaving node
// fails its own result and goes through error classification like any other
// failure; it never takes down the batch or the process.
func (e *Executor) invoke(ctx context.Context, ec *graph.ExecutionContext, n graph.Node) (res *domain.NodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error("node panicked",
				"node", n.ID(), "panic", r, "stack", string(debug.Stack()))
			res = nil
			err = fmt.Errorf("node %s panicked: %v", n.ID(), r)
		}
	}()
	return n.Run(ctx, ec)
}

// checkFootprint rejects a delta that writes outside the node's declared
// write footprint. Undeclared footprints are unconstrained.
func (e *Executor) checkFootprint(n graph.Node, res *domain.NodeResult) error {
	writes := n.Footprint().Writes
	if len(writes) == 0 || len(res.Delta) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(writes))
	for _, k := range writes {
		allowed[k] = true
	}
	for k := range res.Delta {
		if !allowed[k] {
			return fmt.Errorf("%w: node %s wrote undeclared key %q", domain.ErrValidation, n.ID(), k)
		}
	}
	return nil
}

func (e *Executor) cacheKey(snap *domain.Snapshot, n graph.Node) string {
	inputs := snap.State
	if reads := n.Footprint().Reads; len(reads) > 0 {
		inputs = snap.State.Subset(reads)
	}
	key, err := cache.Key(n.ID(), inputs, n.Version())
	if err != nil {
		// Unkeyable inputs just skip the cache for this node.
		e.cfg.Logger.Warn("cache key derivation failed", "node", n.ID(), "err", err)
		return ""
	}
	return key
}

func (e *Executor) cacheLookup(ctx context.Context, executionID, key, nodeID string) (*domain.NodeResult, bool) {
	if e.cfg.Cache == nil || key == "" {
		return nil, false
	}
	cached, ok, err := e.cfg.Cache.Get(ctx, key)
	if err != nil {
		e.cfg.Logger.Warn("cache lookup failed", "node", nodeID, "err", err)
		return nil, false
	}
	if e.cfg.Hooks.OnCache != nil {
		e.cfg.Hooks.OnCache(ctx, &domain.CacheEvent{
			ExecutionID: executionID,
			NodeID:      nodeID,
			Key:         key,
			Hit:         ok,
		})
	}
	if !ok {
		return nil, false
	}

	res := *cached
	res.NodeID = nodeID
	res.Status = domain.ResultCached
	e.appendProvenance(ctx, executionID, domain.ProvenanceEntry{
		Kind:   domain.ProvenanceCacheHit,
		NodeID: nodeID,
		Detail: key,
	})
	return &res, true
}

func (e *Executor) cacheStore(ctx context.Context, key string, res *domain.NodeResult) {
	if e.cfg.Cache == nil || key == "" || res.Status != domain.ResultSuccess {
		return
	}
	if err := e.cfg.Cache.Set(ctx, key, res, e.cfg.CacheTTL); err != nil {
		e.cfg.Logger.Warn("cache store failed", "node", res.NodeID, "err", err)
	}
}

func (e *Executor) emitFinish(ctx context.Context, executionID string, res *domain.NodeResult) {
	if e.cfg.Hooks.OnNodeFinish == nil {
		return
	}
	e.cfg.Hooks.OnNodeFinish(ctx, &domain.NodeEvent{
		ExecutionID: executionID,
		NodeID:      res.NodeID,
		Attempt:     res.Attempt,
		Status:      res.Status,
		Duration:    res.Duration,
		Timestamp:   time.Now().UTC(),
	})
}

// recordResults appends one provenance entry per batch member, winners and
// losers alike.
func (e *Executor) recordResults(ctx context.Context, executionID string, results []*domain.NodeResult) {
	for _, r := range results {
		if r == nil {
			continue
		}
		e.appendProvenance(ctx, executionID, domain.ProvenanceEntry{
			Kind:    domain.ProvenanceNodeResult,
			NodeID:  r.NodeID,
			Attempt: r.Attempt,
			Result:  r,
		})
	}
}

func (e *Executor) recordMerge(ctx context.Context, executionID string, batchSize int, outcome mergeOutcome) error {
	if e.cfg.Hooks.OnMerge != nil {
		e.cfg.Hooks.OnMerge(ctx, &domain.MergeEvent{
			ExecutionID: executionID,
			Strategy:    string(e.cfg.Strategy),
			BatchSize:   batchSize,
			Succeeded:   outcome.succeeded,
		})
	}
	detail := fmt.Sprintf("strategy=%s succeeded=%d/%d", e.cfg.Strategy, outcome.succeeded, batchSize)
	if outcome.winner != "" {
		detail += " winner=" + outcome.winner
	}
	entry := domain.ProvenanceEntry{
		Kind:      domain.ProvenanceMerge,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	if _, err := e.cfg.Store.AppendProvenance(context.WithoutCancel(ctx), executionID, entry); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}
	return nil
}

// appendProvenance is the best-effort variant for audit entries emitted from
// node goroutines; failures are logged, not fatal.
func (e *Executor) appendProvenance(ctx context.Context, executionID string, entry domain.ProvenanceEntry) {
	entry.Timestamp = time.Now().UTC()
	if _, err := e.cfg.Store.AppendProvenance(context.WithoutCancel(ctx), executionID, entry); err != nil {
		e.cfg.Logger.Warn("provenance append failed", "execution_id", executionID, "err", err)
	}
}

// suspend persists the cancelled execution as resumable. The snapshot keeps
// the state of the last completed batch untouched.
func (e *Executor) suspend(ctx context.Context, snap *domain.Snapshot) (*domain.Snapshot, error) {
	e.appendProvenance(ctx, snap.ExecutionID, domain.ProvenanceEntry{
		Kind:   domain.ProvenanceCancel,
		Detail: "execution cancelled",
	})
	snap.Status = domain.StatusSuspended
	snap.UpdatedAt = time.Now().UTC()
	if err := e.cfg.Store.SaveSnapshot(context.WithoutCancel(ctx), snap); err != nil {
		return snap, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}
	e.cfg.Logger.Info("execution suspended", "execution_id", snap.ExecutionID,
		"completed_nodes", len(snap.CompletedNodes))
	return snap, domain.ErrExecutionCanceled
}

func (e *Executor) fail(ctx context.Context, snap *domain.Snapshot, cause error) (*domain.Snapshot, error) {
	snap.Status = domain.StatusFailed
	snap.Error = cause.Error()
	snap.UpdatedAt = time.Now().UTC()
	if err := e.cfg.Store.SaveSnapshot(context.WithoutCancel(ctx), snap); err != nil {
		return snap, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}
	e.cfg.Logger.Error("execution failed", "execution_id", snap.ExecutionID, "err", cause)
	return snap, cause
}

func (e *Executor) complete(ctx context.Context, snap *domain.Snapshot, terminal any) (*domain.Snapshot, error) {
	snap.Status = domain.StatusCompleted
	snap.Terminal = terminal
	snap.UpdatedAt = time.Now().UTC()
	if err := e.cfg.Store.SaveSnapshot(context.WithoutCancel(ctx), snap); err != nil {
		return snap, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}
	e.cfg.Logger.Info("execution completed", "execution_id", snap.ExecutionID,
		"completed_nodes", len(snap.CompletedNodes))
	return snap, nil
}

func failedResult(nodeID string, attempt int, err error) *domain.NodeResult {
	return &domain.NodeResult{
		NodeID:  nodeID,
		Status:  domain.ResultFailed,
		Attempt: attempt,
		Error:   err.Error(),
	}
}
