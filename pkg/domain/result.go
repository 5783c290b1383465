package domain

import "time"

// ResultStatus describes the outcome of one node invocation.
type ResultStatus string

const (
	// ResultSuccess means the node produced a usable delta or terminal value.
	ResultSuccess ResultStatus = "success"
	// ResultFailed means the node returned a classified error.
	ResultFailed ResultStatus = "failed"
	// ResultAbandoned means the node lost a FIRST_SUCCESS race and its output
	// was discarded from the merge. The result is still recorded in the
	// provenance chain.
	ResultAbandoned ResultStatus = "abandoned"
	// ResultCached means the result was served from the cache without
	// executing the node.
	ResultCached ResultStatus = "cached"
)

// Usage captures the resources consumed by a node invocation.
type Usage struct {
	ProviderCalls int `json:"provider_calls,omitempty"`
	Tokens        int `json:"tokens,omitempty"`
}

// NodeResult is the immutable output of a single node invocation. It is owned
// by the executor until it is merged into successor state or discarded; either
// way it is appended to the provenance chain.
type NodeResult struct {
	NodeID  string       `json:"node_id"`
	Status  ResultStatus `json:"status"`
	Attempt int          `json:"attempt"`

	// Delta is the set of state keys the node produced. Keys must fall
	// within the node's declared write footprint.
	Delta GraphState `json:"delta,omitempty"`

	// Terminal, when non-nil, ends the execution with this value instead of
	// scheduling successors.
	Terminal any `json:"terminal,omitempty"`

	// Error holds the failure message when Status is ResultFailed.
	Error string `json:"error,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Usage     Usage         `json:"usage,omitempty"`
}

// Succeeded reports whether the result can contribute to a merge.
func (r *NodeResult) Succeeded() bool {
	return r != nil && (r.Status == ResultSuccess || r.Status == ResultCached)
}
