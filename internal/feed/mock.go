package feed

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/dvloznov/tx-collector/internal/domain"
)

// The mock feeds reproduce the fixed upstream contract: one hundred paired
// records, store-1 through store-10 cycling, dates spread over the last
// thirty days.
const mockRecordCount = 100

// MockTransactions returns the deterministic primary feed dataset, dated
// relative to now.
func MockTransactions(now time.Time) []domain.Transaction {
	txs := make([]domain.Transaction, mockRecordCount)
	for i := range txs {
		cancel := "N"
		if i%2 == 1 {
			cancel = "Y"
		}
		txs[i] = domain.Transaction{
			TransactionID: "tx-" + strconv.Itoa(i+1),
			StoreID:       "store-" + strconv.Itoa(i%10+1),
			Amount:        domain.Num(float64((i + 1) * 100)),
			Balance:       domain.Num(float64((i+1)*1000 + 50000)),
			CancelYN:      cancel,
			Date:          now.AddDate(0, 0, -(i % 30)).Format("2006-01-02"),
		}
	}
	return txs
}

// MockStoreDetails returns the matching detail feed dataset.
func MockStoreDetails() []domain.StoreDetail {
	details := make([]domain.StoreDetail, mockRecordCount)
	for i := range details {
		details[i] = domain.StoreDetail{
			StoreID:       "store-" + strconv.Itoa(i%10+1),
			TransactionID: "tx-" + strconv.Itoa(i+1),
			ProductID:     "prod-" + strconv.Itoa(i+1),
		}
	}
	return details
}

// MockTransactionHandler serves GET /transaction with the paginated envelope
// of the primary feed.
func MockTransactionHandler(txs []domain.Transaction, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/transaction", func(w http.ResponseWriter, req *http.Request) {
		pageNo := queryInt(req, "page", 1)
		pageSize := queryInt(req, "pageSize", 10)

		list, totalPage := slicePage(txs, pageNo, pageSize)
		log.Debug().Int("page", pageNo).Int("page_size", pageSize).Int("returned", len(list)).Msg("Mock transaction request")
		writePage(w, list, totalPage)
	})
	return r
}

// MockDetailHandler serves POST /store-transaction/{storeId} with the
// paginated envelope of the detail feed, filtered by store.
func MockDetailHandler(details []domain.StoreDetail, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Post("/store-transaction/{storeId}", func(w http.ResponseWriter, req *http.Request) {
		storeID := chi.URLParam(req, "storeId")

		var body struct {
			Page     int    `json:"page"`
			Date     string `json:"date"`
			PageSize int    `json:"pageSize"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if body.Page < 1 {
			body.Page = 1
		}
		if body.PageSize < 1 {
			body.PageSize = 10
		}

		var filtered []domain.StoreDetail
		for _, d := range details {
			if d.StoreID == storeID {
				filtered = append(filtered, d)
			}
		}

		list, totalPage := slicePage(filtered, body.Page, body.PageSize)
		log.Debug().Str("store_id", storeID).Int("page", body.Page).Int("returned", len(list)).Msg("Mock detail request")
		writePage(w, list, totalPage)
	})
	return r
}

// slicePage applies the upstream pagination convention: a page size at or
// above the dataset size returns everything as a single page.
func slicePage[T any](all []T, pageNo, pageSize int) ([]T, int) {
	if pageSize >= len(all) {
		return all, 1
	}
	totalPage := (len(all) + pageSize - 1) / pageSize
	start := (pageNo - 1) * pageSize
	if start >= len(all) {
		return nil, totalPage
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], totalPage
}

func writePage[T any](w http.ResponseWriter, list []T, totalPage int) {
	if list == nil {
		list = []T{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page[T]{
		List:     list,
		PageInfo: pageInfo{TotalPage: totalPage},
	})
}

func queryInt(req *http.Request, key string, def int) int {
	v, err := strconv.Atoi(req.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
