package limits

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Admission enforces one Budget at runtime. Build a fresh Admission whenever
// the budget's inputs change; the budget itself is never mutated in place.
type Admission struct {
	budget Budget

	// nodeSem bounds all executing nodes; callSem additionally bounds the
	// subset that invokes the provider.
	nodeSem *semaphore.Weighted
	callSem *semaphore.Weighted

	// limiter paces sustained call throughput below the provider limit.
	limiter *rate.Limiter
}

// NewAdmission creates an admission controller for the given budget.
func NewAdmission(b Budget) *Admission {
	burst := b.MaxParallelCalls
	if burst < 1 {
		burst = 1
	}
	return &Admission{
		budget:  b,
		nodeSem: semaphore.NewWeighted(int64(b.MaxParallelNodes)),
		callSem: semaphore.NewWeighted(int64(b.MaxParallelCalls)),
		limiter: rate.NewLimiter(rate.Limit(b.CallsPerSecond), burst),
	}
}

// Budget returns the budget this controller enforces.
func (a *Admission) Budget() Budget { return a.budget }

// AcquireNode blocks until a node slot is available or ctx is cancelled.
// Nodes that invoke the provider are charged against the tighter call-slot
// ceiling so that MaxParallelNodes never lets call-bearing work exceed
// MaxParallelCalls. The returned release function must be called exactly once.
func (a *Admission) AcquireNode(ctx context.Context, callsProvider bool) (func(), error) {
	if err := a.nodeSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if !callsProvider {
		return func() { a.nodeSem.Release(1) }, nil
	}
	if err := a.callSem.Acquire(ctx, 1); err != nil {
		a.nodeSem.Release(1)
		return nil, err
	}
	return func() {
		a.callSem.Release(1)
		a.nodeSem.Release(1)
	}, nil
}

// Wait paces one provider call against the token bucket. It implements
// graph.CallGate: the wait is a suspension point, and cancellation aborts it.
func (a *Admission) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}
