// Package feed implements the clients for the two paginated upstream feeds
// and the fallback CSV snapshot, plus handlers that reproduce the upstream
// contract for local runs and tests.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

// page is the wire envelope shared by both upstream feeds.
type page[T any] struct {
	List     []T      `json:"list"`
	PageInfo pageInfo `json:"pageInfo"`
}

type pageInfo struct {
	TotalPage int `json:"totalPage"`
}

// newBreaker builds the circuit breaker guarding one upstream endpoint. An
// open breaker fails fast and feeds the same source-unavailable path as a
// transport error.
func newBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// doRequest issues one HTTP request through the breaker and returns the
// response body. Non-2xx statuses count as failures.
func doRequest(ctx context.Context, hc *http.Client, cb *gobreaker.CircuitBreaker[[]byte], method, url string, body []byte) ([]byte, error) {
	return cb.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	})
}

// fetchPage requests one page and decodes the envelope.
func fetchPage[T any](ctx context.Context, hc *http.Client, cb *gobreaker.CircuitBreaker[[]byte], method, url string, body []byte) (page[T], error) {
	var p page[T]
	raw, err := doRequest(ctx, hc, cb, method, url, body)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode page: %w", err)
	}
	return p, nil
}
