package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dvloznov/tx-collector/internal/domain"
)

// TransactionClient fetches base transactions from the primary feed:
// GET {base}/transaction?page=N&pageSize=M.
type TransactionClient struct {
	baseURL  string
	pageSize int
	hc       *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	log      zerolog.Logger
}

// NewTransactionClient creates a primary feed client. A pageSize at or above
// the upstream record count collapses the page loop to a single request.
func NewTransactionClient(baseURL string, pageSize int, timeout time.Duration, log zerolog.Logger) *TransactionClient {
	return &TransactionClient{
		baseURL:  baseURL,
		pageSize: pageSize,
		hc:       &http.Client{Timeout: timeout},
		breaker:  newBreaker("transaction-feed"),
		log:      log.With().Str("component", "transaction_client").Logger(),
	}
}

// FetchAll retrieves every transaction the feed reports, walking pages until
// the reported total. A failed request ends the walk; the caller receives
// whatever accumulated so far. Total feed unavailability yields an empty
// slice, never an error.
func (c *TransactionClient) FetchAll(ctx context.Context) []domain.Transaction {
	var all []domain.Transaction
	for pageNo := 1; ; pageNo++ {
		url := fmt.Sprintf("%s/transaction?page=%d&pageSize=%d", c.baseURL, pageNo, c.pageSize)
		p, err := fetchPage[domain.Transaction](ctx, c.hc, c.breaker, http.MethodGet, url, nil)
		if err != nil {
			c.log.Warn().Err(err).Int("page", pageNo).Msg("Transaction feed unavailable, continuing with partial result")
			return all
		}
		all = append(all, p.List...)
		if pageNo >= p.PageInfo.TotalPage {
			return all
		}
	}
}
