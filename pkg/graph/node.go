package graph

import (
	"context"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultNodeTimeout applies to nodes that do not declare one.
const DefaultNodeTimeout = 30 * time.Second

// Footprint declares the subset of state a node touches. Reads feed cache-key
// derivation; Writes feed the builder's parallel-safety analysis.
type Footprint struct {
	Reads  []string
	Writes []string
}

// Node is a unit of work in the execution graph. Implementations are created
// by graph authors, invoked by the executor, and never mutated after
// registration.
type Node interface {
	// ID returns the node's unique identifier within its graph.
	ID() string

	// Dependencies returns the IDs of nodes that must complete first.
	Dependencies() []string

	// Footprint returns the declared read/write state subsets.
	Footprint() Footprint

	// Version is the node's logic version tag. Bump it whenever the node's
	// behavior changes; the cache key changes with it, so stale entries
	// become unreachable without explicit deletion.
	Version() string

	// Timeout is the maximum duration of one invocation. Zero means
	// DefaultNodeTimeout. Exceeding it is classified as transient.
	Timeout() time.Duration

	// Run consumes an isolated state view and yields a result: a state delta
	// for successors, or a terminal value that ends the execution. Errors
	// should be wrapped with the domain sentinels so recovery can classify
	// them; unwrapped errors are treated as Unknown.
	Run(ctx context.Context, ec *ExecutionContext) (*domain.NodeResult, error)

	// CallsProvider reports whether Run invokes the external provider. The
	// admission controller only charges call slots for nodes that do.
	CallsProvider() bool
}

// FuncNode wraps a function as a Node for simple cases.
type FuncNode struct {
	NodeID       string
	Deps         []string
	Foot         Footprint
	Tag          string
	MaxDuration  time.Duration
	UsesProvider bool
	Fn           func(ctx context.Context, ec *ExecutionContext) (*domain.NodeResult, error)
}

// NewFuncNode creates a node from a function. The returned node declares no
// footprint, version "v1", and no provider usage; chain the With* helpers to
// adjust.
func NewFuncNode(id string, deps []string, fn func(ctx context.Context, ec *ExecutionContext) (*domain.NodeResult, error)) *FuncNode {
	return &FuncNode{NodeID: id, Deps: deps, Tag: "v1", Fn: fn}
}

// WithFootprint declares the read/write state subsets.
func (n *FuncNode) WithFootprint(reads, writes []string) *FuncNode {
	n.Foot = Footprint{Reads: reads, Writes: writes}
	return n
}

// WithVersion sets the logic version tag.
func (n *FuncNode) WithVersion(tag string) *FuncNode {
	n.Tag = tag
	return n
}

// WithTimeout sets the maximum invocation duration.
func (n *FuncNode) WithTimeout(d time.Duration) *FuncNode {
	n.MaxDuration = d
	return n
}

// WithProvider marks the node as invoking the external provider.
func (n *FuncNode) WithProvider() *FuncNode {
	n.UsesProvider = true
	return n
}

func (n *FuncNode) ID() string             { return n.NodeID }
func (n *FuncNode) Dependencies() []string { return n.Deps }
func (n *FuncNode) Footprint() Footprint   { return n.Foot }
func (n *FuncNode) Version() string        { return n.Tag }
func (n *FuncNode) Timeout() time.Duration { return n.MaxDuration }
func (n *FuncNode) CallsProvider() bool    { return n.UsesProvider }

func (n *FuncNode) Run(ctx context.Context, ec *ExecutionContext) (*domain.NodeResult, error) {
	return n.Fn(ctx, ec)
}

// Success builds a successful NodeResult carrying a state delta.
func Success(nodeID string, delta domain.GraphState) *domain.NodeResult {
	return &domain.NodeResult{
		NodeID: nodeID,
		Status: domain.ResultSuccess,
		Delta:  delta,
	}
}

// Terminal builds a successful NodeResult that ends the execution with a value.
func Terminal(nodeID string, value any) *domain.NodeResult {
	return &domain.NodeResult{
		NodeID:   nodeID,
		Status:   domain.ResultSuccess,
		Terminal: value,
	}
}
