package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// ExecutionStore defines the interface for persisting execution state.
// This enables durable execution: "Stop & Resume" plus auditable replay.
//
// Implementations must guarantee:
//
//   - SaveSnapshot is atomic. A failed save leaves the prior snapshot intact,
//     never a half-written one.
//   - AppendProvenance assigns a monotonically increasing Seq per execution
//     and never mutates entries once written.
type ExecutionStore interface {
	// SaveSnapshot persists the snapshot for its execution ID.
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error

	// LoadSnapshot retrieves the latest snapshot for an execution.
	// Returns domain.ErrExecutionNotFound if the execution does not exist.
	LoadSnapshot(ctx context.Context, executionID string) (*domain.Snapshot, error)

	// AppendProvenance appends one entry to the execution's provenance chain
	// and returns the assigned logical timestamp.
	AppendProvenance(ctx context.Context, executionID string, entry domain.ProvenanceEntry) (uint64, error)

	// History returns the full record: latest snapshot plus ordered provenance.
	// Returns domain.ErrExecutionNotFound if the execution does not exist.
	History(ctx context.Context, executionID string) (*domain.ExecutionRecord, error)

	// List returns the known execution IDs.
	List(ctx context.Context) ([]string, error)

	// Delete removes an execution and its provenance.
	Delete(ctx context.Context, executionID string) error
}
