package domain

import (
	"errors"
	"fmt"
)

// ErrExecutionNotFound is returned when an execution ID cannot be found in the store.
var ErrExecutionNotFound = errors.New("execution not found")

// ErrValidation marks bad node input or a schema violation. Never retried.
var ErrValidation = errors.New("validation error")

// ErrTransientProvider marks a rate-limit rejection, timeout, or upstream 5xx.
// Retryable with backoff.
var ErrTransientProvider = errors.New("transient provider error")

// ErrCacheCorruption marks a cache entry that failed to deserialize. The entry
// is evicted and execution falls back to running the node; this error never
// propagates to callers.
var ErrCacheCorruption = errors.New("cache entry corrupt")

// ErrPersistenceWrite marks a failed durable write. Fatal: the execution
// halts, leaving the last good snapshot intact.
var ErrPersistenceWrite = errors.New("persistence write failed")

// ErrGraphInvalid is returned by the graph builder when the definition is
// rejected (cycle, unknown dependency, overlapping write footprints).
var ErrGraphInvalid = errors.New("invalid graph")

// ErrExecutionCanceled is recorded when an execution is cancelled by the caller.
var ErrExecutionCanceled = errors.New("execution canceled")

// NodeError wraps a node failure with its identity and attempt count.
type NodeError struct {
	NodeID  string
	Attempt int
	Err     error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (attempt %d): %v", e.NodeID, e.Attempt, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
