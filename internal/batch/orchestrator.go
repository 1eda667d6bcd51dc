// Package batch implements the recurring merge pipeline: fetch base
// transactions from the primary feed and the CSV snapshot, fetch matching
// store details, merge pairs by transaction id, submit them to the merge
// store in rate-limited batches and record a summary of the run.
package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dvloznov/tx-collector/internal/domain"
)

// TransactionSource yields the base transactions for a run. Implementations
// absorb upstream failures and return whatever they could fetch.
type TransactionSource interface {
	FetchAll(ctx context.Context) []domain.Transaction
}

// SnapshotSource yields the fallback snapshot of transactions.
type SnapshotSource interface {
	Load() ([]domain.Transaction, error)
}

// DetailSource yields store-scoped detail records for one storeId/date pair.
type DetailSource interface {
	FetchByStore(ctx context.Context, storeID, date string) ([]domain.StoreDetail, error)
}

// Saver persists one merged record with exactly-once semantics per id.
type Saver interface {
	Save(ctx context.Context, rec domain.MergedRecord) error
}

// HistoryRecorder records a run summary, best-effort.
type HistoryRecorder interface {
	Record(ctx context.Context, summary domain.RunSummary)
}

// Config tunes one orchestrator.
type Config struct {
	// Interval between scheduled runs.
	Interval time.Duration
	// Size is the number of records submitted concurrently per batch.
	Size int
	// Floor is the minimum wall-clock spacing between batch starts.
	Floor time.Duration
	// DetailConcurrency bounds the concurrent detail fetches.
	DetailConcurrency int
}

// Orchestrator drives the merge pipeline. Runs triggered while a previous
// run is still active are skipped rather than interleaved.
type Orchestrator struct {
	cfg          Config
	transactions TransactionSource
	snapshot     SnapshotSource
	details      DetailSource
	saver        Saver
	recorder     HistoryRecorder
	limiter      *rate.Limiter
	running      atomic.Bool
	log          zerolog.Logger
}

// New creates an orchestrator.
func New(cfg Config, transactions TransactionSource, snapshot SnapshotSource, details DetailSource, saver Saver, recorder HistoryRecorder, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		transactions: transactions,
		snapshot:     snapshot,
		details:      details,
		saver:        saver,
		recorder:     recorder,
		limiter:      rate.NewLimiter(rate.Every(cfg.Floor), 1),
		log:          log.With().Str("component", "batch").Logger(),
	}
}

// Start runs the scheduler until ctx is cancelled. Each tick triggers one
// run; a tick that fires while a run is active is skipped.
func (o *Orchestrator) Start(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	o.log.Info().Dur("interval", o.cfg.Interval).Msg("Batch scheduler started")
	for {
		select {
		case <-ctx.Done():
			o.log.Info().Msg("Batch scheduler stopped")
			return
		case <-ticker.C:
			if !o.running.CompareAndSwap(false, true) {
				o.log.Warn().Msg("Previous run still active, skipping tick")
				continue
			}
			go func() {
				defer o.running.Store(false)
				o.Run(ctx)
			}()
		}
	}
}

// counters accumulates run totals; saves within a batch run concurrently.
type counters struct {
	mu                   sync.Mutex
	total, success, fail int
}

// Run executes one full pipeline pass and records its summary. A fatal error
// in any phase aborts the remaining phases but still produces a summary with
// the counters accumulated so far; the error never escapes to the scheduler.
func (o *Orchestrator) Run(ctx context.Context) domain.RunSummary {
	log := o.log.With().Str("run_id", uuid.NewString()).Logger()
	startedAt := time.Now().UTC()
	var c counters

	err := o.run(ctx, log, &c)

	summary := domain.RunSummary{
		StartedAt: startedAt,
		EndedAt:   time.Now().UTC(),
		Total:     c.total,
		Success:   c.success,
		Fail:      c.fail,
	}
	if err != nil {
		summary.Error = err.Error()
		log.Error().Err(err).Msg("Run aborted")
	}

	o.recorder.Record(ctx, summary)
	return summary
}

// run executes the Fetching, Joining and Submitting phases. Panics are
// converted to errors so an unexpected condition in one run cannot take the
// scheduler down.
func (o *Orchestrator) run(ctx context.Context, log zerolog.Logger, c *counters) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected pipeline failure: %v", r)
		}
	}()

	// Fetching: primary feed first, snapshot second.
	working := o.transactions.FetchAll(ctx)
	snapshot, err := o.snapshot.Load()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	working = append(working, snapshot...)
	log.Info().Int("transactions", len(working)).Msg("Fetched working set")

	details := o.fetchDetails(ctx, log, working)

	// Joining.
	merged := join(log, working, details)
	log.Info().Int("joined", len(merged)).Msg("Joined transactions with store details")

	// Submitting.
	return o.submit(ctx, log, merged, c)
}

// storeDate identifies one detail fetch scope.
type storeDate struct {
	storeID string
	date    string
}

// fetchDetails retrieves detail records once per distinct storeId/date pair
// in the working set, with bounded concurrency. A failed scope is skipped;
// the remaining scopes still contribute their records.
func (o *Orchestrator) fetchDetails(ctx context.Context, log zerolog.Logger, working []domain.Transaction) []domain.StoreDetail {
	seen := make(map[storeDate]bool)
	var scopes []storeDate
	for _, tx := range working {
		key := storeDate{storeID: tx.StoreID, date: tx.Date}
		if tx.StoreID == "" || seen[key] {
			continue
		}
		seen[key] = true
		scopes = append(scopes, key)
	}

	var (
		mu      sync.Mutex
		details []domain.StoreDetail
		wg      sync.WaitGroup
		sem     = make(chan struct{}, o.cfg.DetailConcurrency)
	)
	for _, scope := range scopes {
		wg.Add(1)
		sem <- struct{}{}
		go func(scope storeDate) {
			defer wg.Done()
			defer func() { <-sem }()

			fetched, err := o.details.FetchByStore(ctx, scope.storeID, scope.date)
			if err != nil {
				// Already logged by the client; this scope contributes nothing.
				return
			}
			mu.Lock()
			details = append(details, fetched...)
			mu.Unlock()
		}(scope)
	}
	wg.Wait()

	log.Info().Int("scopes", len(scopes)).Int("details", len(details)).Msg("Fetched store details")
	return details
}

// join pairs each transaction with the first detail record sharing its id.
// Transactions without a match are dropped from the run; that is not a
// failure, they are simply not submitted.
func join(log zerolog.Logger, working []domain.Transaction, details []domain.StoreDetail) []domain.MergedRecord {
	byID := make(map[string]domain.StoreDetail, len(details))
	for _, d := range details {
		if _, ok := byID[d.TransactionID]; !ok {
			byID[d.TransactionID] = d
		}
	}

	var merged []domain.MergedRecord
	for _, tx := range working {
		detail, ok := byID[tx.TransactionID]
		if !ok {
			log.Debug().Str("transaction_id", tx.TransactionID).Msg("No matching store detail, dropping from run")
			continue
		}
		merged = append(merged, domain.Merge(tx, detail))
	}
	return merged
}

// submit saves the merged records in sequential batches. Records within one
// batch are saved concurrently; batch N completes before batch N+1 starts,
// and batch starts are spaced at least Floor apart to protect the store from
// burst load. Per-record failures are counted, never fatal.
func (o *Orchestrator) submit(ctx context.Context, log zerolog.Logger, merged []domain.MergedRecord, c *counters) error {
	for start := 0; start < len(merged); start += o.cfg.Size {
		if err := o.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("submission interrupted: %w", err)
		}

		end := start + o.cfg.Size
		if end > len(merged) {
			end = len(merged)
		}

		var wg sync.WaitGroup
		for _, rec := range merged[start:end] {
			c.mu.Lock()
			c.total++
			c.mu.Unlock()

			wg.Add(1)
			go func(rec domain.MergedRecord) {
				defer wg.Done()

				err := o.saver.Save(ctx, rec)
				c.mu.Lock()
				defer c.mu.Unlock()
				if err != nil {
					c.fail++
					log.Error().Err(err).Str("transaction_id", rec.TransactionID).Msg("Save failed")
					return
				}
				c.success++
			}(rec)
		}
		wg.Wait()
	}
	return nil
}
