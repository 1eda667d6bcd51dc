// Package history keeps the append-only log of batch run summaries.
package history

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/dvloznov/tx-collector/internal/domain"
	"github.com/dvloznov/tx-collector/internal/filedb"
)

const historyPath = "/batchHistory"

// Recorder appends run summaries to the store. History is best-effort
// observability: a failed append is logged, never propagated, so it cannot
// fail an otherwise healthy run.
type Recorder struct {
	db  *filedb.DB
	log zerolog.Logger
}

// NewRecorder creates a recorder over db.
func NewRecorder(db *filedb.DB, log zerolog.Logger) *Recorder {
	return &Recorder{
		db:  db,
		log: log.With().Str("component", "history").Logger(),
	}
}

// Init seeds the history collection when the store file is fresh.
func (r *Recorder) Init() error {
	return r.db.EnsureArray(historyPath)
}

// Record appends one run summary.
func (r *Recorder) Record(ctx context.Context, summary domain.RunSummary) {
	if err := r.db.Push(historyPath, summary); err != nil {
		r.log.Error().Err(err).Msg("Failed to record run history")
		return
	}
	r.log.Info().
		Int("total", summary.Total).
		Int("success", summary.Success).
		Int("fail", summary.Fail).
		Str("error", summary.Error).
		Msg("Recorded run history")
}

// GetAll returns the full history in recorded order, or an empty slice when
// the log is missing or unreadable.
func (r *Recorder) GetAll(ctx context.Context) []domain.RunSummary {
	var all []domain.RunSummary
	if err := r.db.Get(historyPath, &all); err != nil {
		if !errors.Is(err, filedb.ErrPathNotFound) {
			r.log.Error().Err(err).Msg("Failed to read run history")
		}
		return nil
	}
	return all
}
