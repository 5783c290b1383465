// Package badger provides a durable ExecutionStore backed by BadgerDB, an
// embedded key-value store. Snapshots and provenance survive process restarts,
// which is what makes stop-and-resume possible without external infrastructure.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/aretw0/arbor/pkg/domain"
)

// Key layout. Provenance keys embed a zero-padded sequence number so that
// lexicographic iteration yields chain order.
const (
	snapshotPrefix   = "snap:"
	provenancePrefix = "prov:"
	sequencePrefix   = "seq:"
)

// Store implements ports.ExecutionStore on top of BadgerDB.
// Safe for concurrent use.
type Store struct {
	db *badger.DB

	// Serializes provenance appends so sequence assignment never hits a
	// transaction conflict.
	appendMu sync.Mutex

	path       string
	inMemory   bool
	syncWrites bool
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPath sets the directory for database files. The directory is created if
// it does not exist.
func WithPath(path string) Option {
	return func(s *Store) { s.path = path }
}

// WithInMemory keeps all data in memory. Useful for tests; data is lost on
// Close.
func WithInMemory() Option {
	return func(s *Store) { s.inMemory = true }
}

// WithSyncWrites toggles synchronous writes. On by default; turning it off
// trades durability for speed.
func WithSyncWrites(sync bool) Option {
	return func(s *Store) { s.syncWrites = sync }
}

// WithLogger routes Badger's internal logging through the given logger.
// Without it, Badger's own logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore opens (or creates) the database and returns the store.
// Callers must Close the store when done.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{syncWrites: true}
	for _, opt := range opts {
		opt(s)
	}

	var badgerOpts badger.Options
	if s.inMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if s.path == "" {
			return nil, errors.New("badger: path is required for a persistent store")
		}
		if err := os.MkdirAll(s.path, 0o750); err != nil {
			return nil, fmt.Errorf("badger: create directory %s: %w", s.path, err)
		}
		badgerOpts = badger.DefaultOptions(s.path)
	}
	badgerOpts = badgerOpts.WithSyncWrites(s.syncWrites).WithNumVersionsToKeep(1)
	if s.logger != nil {
		badgerOpts = badgerOpts.WithLogger(&slogAdapter{logger: s.logger})
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("badger: open database: %w", err)
	}
	s.db = db
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot persists the snapshot in a single transaction. Badger
// transactions are atomic, so a failed save leaves the prior snapshot intact.
func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%w: marshal snapshot: %v", domain.ErrPersistenceWrite, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.ExecutionID), raw)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}
	return nil
}

// LoadSnapshot retrieves the latest snapshot.
func (s *Store) LoadSnapshot(ctx context.Context, executionID string) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(executionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrExecutionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// AppendProvenance appends one entry, assigning the next sequence number from
// a per-execution counter stored alongside the chain. Counter read and entry
// write share one transaction.
func (s *Store) AppendProvenance(ctx context.Context, executionID string, entry domain.ProvenanceEntry) (uint64, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	var seq uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		seq = 1
		item, err := txn.Get(sequenceKey(executionID))
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				seq = binary.BigEndian.Uint64(val) + 1
				return nil
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// first entry
		default:
			return err
		}

		entry.Seq = seq
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], seq)
		if err := txn.Set(sequenceKey(executionID), buf[:]); err != nil {
			return err
		}
		return txn.Set(provenanceKey(executionID, seq), raw)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: append provenance: %v", domain.ErrPersistenceWrite, err)
	}
	return seq, nil
}

// History returns the full record. Provenance is read back in key order, which
// matches sequence order by construction.
func (s *Store) History(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	snap, err := s.LoadSnapshot(ctx, executionID)
	if err != nil {
		return nil, err
	}

	var entries []domain.ProvenanceEntry
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(provenancePrefix + executionID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry domain.ProvenanceEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &domain.ExecutionRecord{
		ExecutionID:        executionID,
		Snapshot:           snap,
		Provenance:         entries,
		Replay:             snap.Replay,
		OriginalID:         snap.OriginalID,
		DeterminismFlagged: snap.DeterminismFlagged,
	}, nil
}

// List returns the known execution IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(snapshotPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			ids = append(ids, string(key[len(snapshotPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Delete removes an execution, its provenance chain, and its sequence counter.
func (s *Store) Delete(ctx context.Context, executionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		// Collect provenance keys first; deleting while iterating is unsafe.
		var keys [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(provenancePrefix + executionID + ":")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		if err := txn.Delete(sequenceKey(executionID)); err != nil {
			return err
		}
		return txn.Delete(snapshotKey(executionID))
	})
}

func snapshotKey(executionID string) []byte {
	return []byte(snapshotPrefix + executionID)
}

func provenanceKey(executionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", provenancePrefix, executionID, seq))
}

func sequenceKey(executionID string) []byte {
	return []byte(sequencePrefix + executionID)
}

// slogAdapter bridges slog to Badger's Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
