// Package store persists merged transaction records with exactly-once
// semantics per transaction id.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dvloznov/tx-collector/internal/domain"
	"github.com/dvloznov/tx-collector/internal/filedb"
)

const (
	mergeListPath = "/mergeTransactions"
	mergeByIDBase = "/mergeTransactionsById"
)

// MergeStore is a deduplicating store for merged records. It keeps two views
// in the backing document: an ordered list for range queries and an index by
// transaction id for existence checks.
//
// The exists-then-write sequence inside Save is the single critical section
// of the pipeline; mu is store-wide so no two saves interleave their index
// updates even for different ids.
type MergeStore struct {
	mu  sync.Mutex
	db  *filedb.DB
	log zerolog.Logger
}

// NewMergeStore creates a merge store over db.
func NewMergeStore(db *filedb.DB, log zerolog.Logger) *MergeStore {
	return &MergeStore{
		db:  db,
		log: log.With().Str("component", "merge_store").Logger(),
	}
}

// Init seeds the backing collections when the store file is fresh.
func (s *MergeStore) Init() error {
	return s.db.EnsureArray(mergeListPath)
}

// Exists reports whether a record with the id has been saved. A storage
// failure reads as "not found" so a later save can retry instead of being
// silently blocked.
func (s *MergeStore) Exists(ctx context.Context, transactionID string) bool {
	ok, err := s.db.Exists(idPath(transactionID))
	if err != nil {
		s.log.Error().Err(err).Str("transaction_id", transactionID).Msg("Existence check failed, treating as not found")
		return false
	}
	return ok
}

// Save stores the record unless its id is already present. Duplicate ids are
// a silent no-op; only storage write failures surface as errors.
func (s *MergeStore) Save(ctx context.Context, rec domain.MergedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Exists(ctx, rec.TransactionID) {
		s.log.Warn().Str("transaction_id", rec.TransactionID).Msg("Transaction already exists, skipping save")
		return nil
	}

	if err := s.db.Push(mergeListPath, rec); err != nil {
		return fmt.Errorf("save transaction %s: %w", rec.TransactionID, err)
	}
	if err := s.db.Set(idPath(rec.TransactionID), rec); err != nil {
		return fmt.Errorf("index transaction %s: %w", rec.TransactionID, err)
	}

	s.log.Debug().Str("transaction_id", rec.TransactionID).Msg("Saved merged transaction")
	return nil
}

// FindByDateRange returns the stored records whose date falls inside
// [start, end], in insertion order. Dates are fixed-width ISO strings so the
// comparison is plain lexicographic. An empty store yields an empty slice.
func (s *MergeStore) FindByDateRange(ctx context.Context, start, end string) ([]domain.MergedRecord, error) {
	var all []domain.MergedRecord
	if err := s.db.Get(mergeListPath, &all); err != nil {
		if errors.Is(err, filedb.ErrPathNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find transactions in [%s, %s]: %w", start, end, err)
	}

	var matched []domain.MergedRecord
	for _, rec := range all {
		if rec.Date >= start && rec.Date <= end {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

func idPath(transactionID string) string {
	return mergeByIDBase + "/" + transactionID
}
