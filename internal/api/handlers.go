// Package api exposes the read-only query endpoints over the merge store and
// the run history.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/dvloznov/tx-collector/internal/domain"
)

// MergeReader is the slice of the merge store the API needs.
type MergeReader interface {
	FindByDateRange(ctx context.Context, start, end string) ([]domain.MergedRecord, error)
}

// HistoryReader is the slice of the history recorder the API needs.
type HistoryReader interface {
	GetAll(ctx context.Context) []domain.RunSummary
}

// dateRangeQuery carries the validated query parameters of the merged
// transaction lookup.
type dateRangeQuery struct {
	Start string `validate:"required,datetime=2006-01-02"`
	End   string `validate:"required,datetime=2006-01-02"`
}

// Handler serves the query endpoints.
type Handler struct {
	merge    MergeReader
	history  HistoryReader
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler creates the API handler.
func NewHandler(merge MergeReader, history HistoryReader, log zerolog.Logger) *Handler {
	return &Handler{
		merge:    merge,
		history:  history,
		validate: validator.New(),
		log:      log.With().Str("component", "api").Logger(),
	}
}

// Router builds the HTTP routes with the middleware chain applied.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recovery(h.log))
	r.Use(Logger(h.log))
	r.Use(RequestID)

	r.Get("/merge-transactions", h.GetMergeTransactions)
	r.Get("/history/batch-history", h.GetBatchHistory)
	r.Get("/health", h.GetHealth)
	return r
}

// GetMergeTransactions handles GET /merge-transactions?start=...&end=...
// Both parameters are required YYYY-MM-DD dates; malformed input is rejected
// before reaching the store.
func (h *Handler) GetMergeTransactions(w http.ResponseWriter, r *http.Request) {
	q := dateRangeQuery{
		Start: r.URL.Query().Get("start"),
		End:   r.URL.Query().Get("end"),
	}
	if err := h.validate.Struct(q); err != nil {
		WriteError(w, http.StatusBadRequest, "start and end are required and must be YYYY-MM-DD dates")
		return
	}

	records, err := h.merge.FindByDateRange(r.Context(), q.Start, q.End)
	if err != nil {
		h.log.Error().Err(err).Str("start", q.Start).Str("end", q.End).Msg("Failed to query merged transactions")
		WriteError(w, http.StatusInternalServerError, "Failed to query merged transactions")
		return
	}

	if records == nil {
		records = []domain.MergedRecord{}
	}
	WriteJSON(w, http.StatusOK, records)
}

// GetBatchHistory handles GET /history/batch-history.
func (h *Handler) GetBatchHistory(w http.ResponseWriter, r *http.Request) {
	summaries := h.history.GetAll(r.Context())
	if summaries == nil {
		summaries = []domain.RunSummary{}
	}
	WriteJSON(w, http.StatusOK, summaries)
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
