package domain

import "time"

// ExecutionStatus is the user-visible lifecycle of an execution handle.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusSuspended ExecutionStatus = "suspended"
	StatusFailed    ExecutionStatus = "failed"
	StatusCompleted ExecutionStatus = "completed"
)

// ProvenanceKind categorizes entries in the provenance chain.
type ProvenanceKind string

const (
	ProvenanceNodeResult ProvenanceKind = "node_result"
	ProvenanceRetry      ProvenanceKind = "retry"
	ProvenanceCacheHit   ProvenanceKind = "cache_hit"
	ProvenanceMerge      ProvenanceKind = "merge"
	ProvenanceCancel     ProvenanceKind = "cancel"
	ProvenanceReplay     ProvenanceKind = "replay"
	ProvenanceAnomaly    ProvenanceKind = "anomaly"
)

// ProvenanceEntry is one immutable event in an execution's audit log.
// Seq is a per-execution logical timestamp assigned by the store on append;
// entries are totally ordered by it.
type ProvenanceEntry struct {
	Seq       uint64         `json:"seq"`
	Kind      ProvenanceKind `json:"kind"`
	NodeID    string         `json:"node_id,omitempty"`
	Attempt   int            `json:"attempt,omitempty"`
	Class     string         `json:"class,omitempty"` // error classification for retries/failures
	Detail    string         `json:"detail,omitempty"`
	Result    *NodeResult    `json:"result,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Snapshot is a durable point-in-time view of an execution. A failed save
// never replaces the previous snapshot; stores must write atomically.
type Snapshot struct {
	ExecutionID string     `json:"execution_id"`
	GraphName   string     `json:"graph_name"`
	State       GraphState `json:"state"`

	// InitialState is the state the execution started from, kept so the run
	// can be replayed and its determinism audited.
	InitialState GraphState `json:"initial_state,omitempty"`

	CompletedNodes []string        `json:"completed_nodes"`
	Status         ExecutionStatus `json:"status"`
	Terminal       any             `json:"terminal,omitempty"`
	Error          string          `json:"error,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Replay marks a snapshot produced by replaying OriginalID rather than a
	// fresh execution. DeterminismFlagged is set when replayed output
	// diverged from the original; the divergence is logged and kept for
	// audit, never silently dropped.
	Replay             bool   `json:"replay,omitempty"`
	OriginalID         string `json:"original_id,omitempty"`
	DeterminismFlagged bool   `json:"determinism_flagged,omitempty"`
}

// HasCompleted reports whether the given node is in the completed set.
func (s *Snapshot) HasCompleted(nodeID string) bool {
	for _, id := range s.CompletedNodes {
		if id == nodeID {
			return true
		}
	}
	return false
}

// ExecutionRecord is the full history of one execution: its latest snapshot
// plus the ordered provenance chain. Records are append-only; a resumed or
// replayed execution appends new entries or creates a new record referencing
// the original, it never rewrites history.
type ExecutionRecord struct {
	ExecutionID string            `json:"execution_id"`
	Snapshot    *Snapshot         `json:"snapshot"`
	Provenance  []ProvenanceEntry `json:"provenance"`

	// Replay is set when this record was produced by replaying another
	// execution; OriginalID then references the source record.
	Replay     bool   `json:"replay,omitempty"`
	OriginalID string `json:"original_id,omitempty"`

	// DeterminismFlagged is set when a replay produced output that diverged
	// from the original. Divergence is logged and flagged for audit, never
	// silently dropped.
	DeterminismFlagged bool `json:"determinism_flagged,omitempty"`
}
