package graph

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// CallGate admits external calls against the concurrency budget. Wait blocks
// until a call slot is available or ctx is cancelled; blocking here is an
// internal admission signal, never surfaced to callers as an error.
type CallGate interface {
	Wait(ctx context.Context) error
}

// ExecutionContext is the run-scoped view a node receives: an isolated copy
// of the current graph state plus execution-wide dependencies. It is created
// at batch dispatch and discarded after merge.
type ExecutionContext struct {
	ExecutionID string

	// State is the node's private copy. Mutating it has no effect on the
	// merged execution state; results flow back through NodeResult.Delta.
	State domain.GraphState

	cache   ports.ResultCache
	store   ports.ExecutionStore
	invoker ports.Invoker
	gate    CallGate

	usage domain.Usage
}

// NewExecutionContext assembles a context for one node invocation.
// state must already be an isolated copy; the executor owns that guarantee.
func NewExecutionContext(executionID string, state domain.GraphState, cache ports.ResultCache, store ports.ExecutionStore, invoker ports.Invoker, gate CallGate) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: executionID,
		State:       state,
		cache:       cache,
		store:       store,
		invoker:     invoker,
		gate:        gate,
	}
}

// Cache exposes the shared result cache.
func (ec *ExecutionContext) Cache() ports.ResultCache { return ec.cache }

// Store exposes the shared execution store.
func (ec *ExecutionContext) Store() ports.ExecutionStore { return ec.store }

// Invoke performs one external call. It first waits for a call slot from the
// concurrency budget (a suspension point; cancellation aborts the wait), then
// delegates to the configured Invoker. Timing and usage are accounted on the
// context and folded into the NodeResult by the executor.
func (ec *ExecutionContext) Invoke(ctx context.Context, req ports.InvokeRequest) (*ports.InvokeResponse, error) {
	if ec.gate != nil {
		if err := ec.gate.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if ec.invoker == nil {
		return nil, domain.ErrValidation
	}

	resp, err := ec.invoker.Invoke(ctx, req)

	ec.usage.ProviderCalls++
	if resp != nil {
		ec.usage.Tokens += resp.Tokens
	}
	return resp, err
}

// Usage returns the resources consumed so far through this context.
func (ec *ExecutionContext) Usage() domain.Usage { return ec.usage }
