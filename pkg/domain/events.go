package domain

import (
	"context"
	"time"
)

// NodeEvent describes a node lifecycle boundary.
type NodeEvent struct {
	ExecutionID string        `json:"execution_id"`
	NodeID      string        `json:"node_id"`
	Attempt     int           `json:"attempt"`
	Status      ResultStatus  `json:"status,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// CacheEvent describes a cache lookup outcome.
type CacheEvent struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Key         string `json:"key"`
	Hit         bool   `json:"hit"`
}

// RetryEvent describes a scheduled retry of a failed node.
type RetryEvent struct {
	ExecutionID string        `json:"execution_id"`
	NodeID      string        `json:"node_id"`
	Attempt     int           `json:"attempt"`
	Class       string        `json:"class"`
	Backoff     time.Duration `json:"backoff"`
}

// MergeEvent describes the merge of a parallel batch.
type MergeEvent struct {
	ExecutionID string `json:"execution_id"`
	Strategy    string `json:"strategy"`
	BatchSize   int    `json:"batch_size"`
	Succeeded   int    `json:"succeeded"`
}

// LifecycleHooks defines callbacks for engine observability. All hooks are
// optional; nil hooks are skipped. Hooks run synchronously on the executing
// goroutine and must be fast.
type LifecycleHooks struct {
	OnNodeStart  func(context.Context, *NodeEvent)
	OnNodeFinish func(context.Context, *NodeEvent)
	OnCache      func(context.Context, *CacheEvent)
	OnRetry      func(context.Context, *RetryEvent)
	OnMerge      func(context.Context, *MergeEvent)
}

// CombineHooks fans each event out to every hook set, in order. Used to stack
// user callbacks with metrics collection.
func CombineHooks(sets ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	out.OnNodeStart = func(ctx context.Context, ev *NodeEvent) {
		for _, h := range sets {
			if h.OnNodeStart != nil {
				h.OnNodeStart(ctx, ev)
			}
		}
	}
	out.OnNodeFinish = func(ctx context.Context, ev *NodeEvent) {
		for _, h := range sets {
			if h.OnNodeFinish != nil {
				h.OnNodeFinish(ctx, ev)
			}
		}
	}
	out.OnCache = func(ctx context.Context, ev *CacheEvent) {
		for _, h := range sets {
			if h.OnCache != nil {
				h.OnCache(ctx, ev)
			}
		}
	}
	out.OnRetry = func(ctx context.Context, ev *RetryEvent) {
		for _, h := range sets {
			if h.OnRetry != nil {
				h.OnRetry(ctx, ev)
			}
		}
	}
	out.OnMerge = func(ctx context.Context, ev *MergeEvent) {
		for _, h := range sets {
			if h.OnMerge != nil {
				h.OnMerge(ctx, ev)
			}
		}
	}
	return out
}
