// Package memory provides in-process implementations of the persistence
// ports, used as test doubles and as the default for ephemeral engines.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Store implements ports.ExecutionStore in memory.
// Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	snapshots  map[string]*domain.Snapshot
	provenance map[string][]domain.ProvenanceEntry
	seq        map[string]uint64
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		snapshots:  make(map[string]*domain.Snapshot),
		provenance: make(map[string][]domain.ProvenanceEntry),
		seq:        make(map[string]uint64),
	}
}

// SaveSnapshot persists the snapshot. The stored copy goes through a JSON
// round trip to simulate serialization and guarantee isolation from the
// caller's value.
func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	copied, err := copySnapshot(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ExecutionID] = copied
	return nil
}

// LoadSnapshot retrieves the latest snapshot.
func (s *Store) LoadSnapshot(ctx context.Context, executionID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[executionID]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	return copySnapshot(snap)
}

// AppendProvenance appends one entry, assigning the next logical timestamp
// under the store lock.
func (s *Store) AppendProvenance(ctx context.Context, executionID string, entry domain.ProvenanceEntry) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq[executionID]++
	entry.Seq = s.seq[executionID]
	s.provenance[executionID] = append(s.provenance[executionID], entry)
	return entry.Seq, nil
}

// History returns the full record.
func (s *Store) History(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[executionID]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	copied, err := copySnapshot(snap)
	if err != nil {
		return nil, err
	}

	rec := &domain.ExecutionRecord{
		ExecutionID:        executionID,
		Snapshot:           copied,
		Provenance:         append([]domain.ProvenanceEntry(nil), s.provenance[executionID]...),
		Replay:             copied.Replay,
		OriginalID:         copied.OriginalID,
		DeterminismFlagged: copied.DeterminismFlagged,
	}
	return rec, nil
}

// List returns the known execution IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes an execution and its provenance.
func (s *Store) Delete(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, executionID)
	delete(s.provenance, executionID)
	delete(s.seq, executionID)
	return nil
}

func copySnapshot(snap *domain.Snapshot) (*domain.Snapshot, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var out domain.Snapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
