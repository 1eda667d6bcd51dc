package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dvloznov/tx-collector/internal/domain"
)

// DetailClient fetches store-scoped detail records from the detail feed:
// POST {base}/store-transaction/{storeId} with {page, date, pageSize}.
type DetailClient struct {
	baseURL  string
	pageSize int
	hc       *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	log      zerolog.Logger
}

// NewDetailClient creates a detail feed client.
func NewDetailClient(baseURL string, pageSize int, timeout time.Duration, log zerolog.Logger) *DetailClient {
	return &DetailClient{
		baseURL:  baseURL,
		pageSize: pageSize,
		hc:       &http.Client{Timeout: timeout},
		breaker:  newBreaker("store-detail-feed"),
		log:      log.With().Str("component", "detail_client").Logger(),
	}
}

// FetchByStore retrieves the detail records for one storeId/date pair. A
// failure mid-walk returns an error so the caller can skip this scope while
// continuing with the others.
func (c *DetailClient) FetchByStore(ctx context.Context, storeID, date string) ([]domain.StoreDetail, error) {
	var all []domain.StoreDetail
	for pageNo := 1; ; pageNo++ {
		body, err := json.Marshal(map[string]any{
			"page":     pageNo,
			"date":     date,
			"pageSize": c.pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		url := fmt.Sprintf("%s/store-transaction/%s", c.baseURL, storeID)
		p, err := fetchPage[domain.StoreDetail](ctx, c.hc, c.breaker, http.MethodPost, url, body)
		if err != nil {
			c.log.Warn().Err(err).Str("store_id", storeID).Str("date", date).Msg("Detail fetch failed, skipping store/date scope")
			return nil, fmt.Errorf("fetch details for store %s date %s: %w", storeID, date, err)
		}
		all = append(all, p.List...)
		if pageNo >= p.PageInfo.TotalPage {
			return all, nil
		}
	}
}
