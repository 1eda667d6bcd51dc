package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/tx-collector/internal/domain"
	"github.com/dvloznov/tx-collector/internal/logger"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

type fakeTxSource struct {
	txs []domain.Transaction
}

func (f *fakeTxSource) FetchAll(ctx context.Context) []domain.Transaction {
	return f.txs
}

type fakeSnapshot struct {
	txs   []domain.Transaction
	err   error
	delay time.Duration
}

func (f *fakeSnapshot) Load() ([]domain.Transaction, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.txs, f.err
}

type fakeDetailSource struct {
	mu         sync.Mutex
	byStore    map[string][]domain.StoreDetail
	failStores map[string]bool
	calls      []string
}

func (f *fakeDetailSource) FetchByStore(ctx context.Context, storeID, date string) ([]domain.StoreDetail, error) {
	f.mu.Lock()
	f.calls = append(f.calls, storeID+"/"+date)
	f.mu.Unlock()

	if f.failStores[storeID] {
		return nil, errors.New("store feed unavailable")
	}
	return f.byStore[storeID], nil
}

type fakeSaver struct {
	mu      sync.Mutex
	saved   []domain.MergedRecord
	failIDs map[string]bool
}

func (f *fakeSaver) Save(ctx context.Context, rec domain.MergedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[rec.TransactionID] {
		return errors.New("write failed")
	}
	f.saved = append(f.saved, rec)
	return nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	summaries []domain.RunSummary
}

func (f *fakeRecorder) Record(ctx context.Context, summary domain.RunSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, summary)
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.summaries)
}

func makeTx(i int, storeID string) domain.Transaction {
	return domain.Transaction{
		TransactionID: fmt.Sprintf("tx-%d", i),
		StoreID:       storeID,
		Amount:        domain.Num(float64(i * 100)),
		Balance:       domain.Num(float64(i * 1000)),
		CancelYN:      "N",
		Date:          "2024-01-01",
	}
}

func makeDetail(i int, storeID string) domain.StoreDetail {
	return domain.StoreDetail{
		StoreID:       storeID,
		TransactionID: fmt.Sprintf("tx-%d", i),
		ProductID:     fmt.Sprintf("prod-%d", i),
	}
}

func testConfig() Config {
	return Config{
		Interval:          time.Hour,
		Size:              20,
		Floor:             0,
		DetailConcurrency: 2,
	}
}

func TestRunAccounting(t *testing.T) {
	var txs []domain.Transaction
	details := map[string][]domain.StoreDetail{}
	for i := 1; i <= 10; i++ {
		txs = append(txs, makeTx(i, "store-1"))
		details["store-1"] = append(details["store-1"], makeDetail(i, "store-1"))
	}

	saver := &fakeSaver{failIDs: map[string]bool{"tx-3": true, "tx-6": true, "tx-9": true}}
	recorder := &fakeRecorder{}
	o := New(testConfig(),
		&fakeTxSource{txs: txs},
		&fakeSnapshot{},
		&fakeDetailSource{byStore: details},
		saver,
		recorder,
		logger.NewWithWriter(testWriter{t}))

	summary := o.Run(context.Background())

	if summary.Total != 10 || summary.Success != 7 || summary.Fail != 3 {
		t.Errorf("summary = total=%d success=%d fail=%d, want 10/7/3", summary.Total, summary.Success, summary.Fail)
	}
	if summary.Error != "" {
		t.Errorf("summary.Error = %q, want empty", summary.Error)
	}
	if summary.EndedAt.Before(summary.StartedAt) {
		t.Errorf("endedAt %v before startedAt %v", summary.EndedAt, summary.StartedAt)
	}
	if recorder.count() != 1 {
		t.Errorf("recorded %d summaries, want 1", recorder.count())
	}
}

func TestJoinMissIsDroppedNotFailed(t *testing.T) {
	txs := []domain.Transaction{makeTx(1, "store-1"), makeTx(2, "store-1")}
	details := map[string][]domain.StoreDetail{
		"store-1": {makeDetail(1, "store-1")}, // tx-2 has no match
	}

	saver := &fakeSaver{}
	o := New(testConfig(),
		&fakeTxSource{txs: txs},
		&fakeSnapshot{},
		&fakeDetailSource{byStore: details},
		saver,
		&fakeRecorder{},
		logger.NewWithWriter(testWriter{t}))

	summary := o.Run(context.Background())

	if summary.Total != 1 || summary.Success != 1 || summary.Fail != 0 {
		t.Errorf("summary = total=%d success=%d fail=%d, want 1/1/0", summary.Total, summary.Success, summary.Fail)
	}
	if len(saver.saved) != 1 || saver.saved[0].TransactionID != "tx-1" {
		t.Errorf("saved = %+v, want exactly tx-1", saver.saved)
	}
}

func TestJoinMergesFields(t *testing.T) {
	txs := []domain.Transaction{{
		TransactionID: "tx-1",
		StoreID:       "store-1",
		Amount:        domain.Num(100),
		Balance:       domain.Numeric{Raw: "51000"},
		CancelYN:      "N",
		Date:          "2024-01-01",
	}}
	details := map[string][]domain.StoreDetail{
		"store-1": {{StoreID: "store-1", TransactionID: "tx-1", ProductID: "prod-1"}},
	}

	saver := &fakeSaver{}
	o := New(testConfig(),
		&fakeTxSource{txs: txs},
		&fakeSnapshot{},
		&fakeDetailSource{byStore: details},
		saver,
		&fakeRecorder{},
		logger.NewWithWriter(testWriter{t}))
	o.Run(context.Background())

	if len(saver.saved) != 1 {
		t.Fatalf("saved %d records, want 1", len(saver.saved))
	}
	got := saver.saved[0]
	want := domain.MergedRecord{
		TransactionID: "tx-1",
		StoreID:       "store-1",
		ProductID:     "prod-1",
		Amount:        100,
		Balance:       51000,
		CancelYN:      "N",
		Date:          "2024-01-01",
	}
	if got != want {
		t.Errorf("merged record = %+v, want %+v", got, want)
	}
}

func TestFatalFetchIsRecorded(t *testing.T) {
	recorder := &fakeRecorder{}
	o := New(testConfig(),
		&fakeTxSource{},
		&fakeSnapshot{err: errors.New("disk on fire")},
		&fakeDetailSource{},
		&fakeSaver{},
		recorder,
		logger.NewWithWriter(testWriter{t}))

	summary := o.Run(context.Background())

	if summary.Total != 0 || summary.Success != 0 || summary.Fail != 0 {
		t.Errorf("summary counters = %d/%d/%d, want 0/0/0", summary.Total, summary.Success, summary.Fail)
	}
	if summary.Error == "" {
		t.Error("summary.Error is empty, want a fatal error description")
	}
	if recorder.count() != 1 {
		t.Errorf("recorded %d summaries, want 1 even for a fatal run", recorder.count())
	}
}

func TestPanicInSourceBecomesRunError(t *testing.T) {
	recorder := &fakeRecorder{}
	o := New(testConfig(),
		panickingSource{},
		&fakeSnapshot{},
		&fakeDetailSource{},
		&fakeSaver{},
		recorder,
		logger.NewWithWriter(testWriter{t}))

	summary := o.Run(context.Background())
	if summary.Error == "" {
		t.Error("summary.Error is empty, want the recovered panic")
	}
	if recorder.count() != 1 {
		t.Errorf("recorded %d summaries, want 1", recorder.count())
	}
}

type panickingSource struct{}

func (panickingSource) FetchAll(ctx context.Context) []domain.Transaction {
	panic("unreachable upstream state")
}

func TestDetailScopeFailureDoesNotAbortOthers(t *testing.T) {
	txs := []domain.Transaction{makeTx(1, "store-1"), makeTx(2, "store-2")}
	details := &fakeDetailSource{
		byStore: map[string][]domain.StoreDetail{
			"store-1": {makeDetail(1, "store-1")},
			"store-2": {makeDetail(2, "store-2")},
		},
		failStores: map[string]bool{"store-2": true},
	}

	saver := &fakeSaver{}
	o := New(testConfig(),
		&fakeTxSource{txs: txs},
		&fakeSnapshot{},
		details,
		saver,
		&fakeRecorder{},
		logger.NewWithWriter(testWriter{t}))

	summary := o.Run(context.Background())

	if summary.Error != "" {
		t.Errorf("summary.Error = %q, want empty (scope failures are not fatal)", summary.Error)
	}
	if len(saver.saved) != 1 || saver.saved[0].TransactionID != "tx-1" {
		t.Errorf("saved = %+v, want exactly tx-1 from the healthy scope", saver.saved)
	}
}

func TestDetailFetchOncePerDistinctScope(t *testing.T) {
	txs := []domain.Transaction{
		makeTx(1, "store-1"),
		makeTx(2, "store-1"), // same store, same date: one scope
		makeTx(3, "store-2"),
	}
	details := &fakeDetailSource{byStore: map[string][]domain.StoreDetail{}}

	o := New(testConfig(),
		&fakeTxSource{txs: txs},
		&fakeSnapshot{},
		details,
		&fakeSaver{},
		&fakeRecorder{},
		logger.NewWithWriter(testWriter{t}))
	o.Run(context.Background())

	details.mu.Lock()
	defer details.mu.Unlock()
	if len(details.calls) != 2 {
		t.Errorf("detail fetches = %v, want one per distinct store/date pair (2)", details.calls)
	}
}

func TestSnapshotAppendsAfterPrimary(t *testing.T) {
	primary := []domain.Transaction{makeTx(1, "store-1")}
	snapshot := []domain.Transaction{makeTx(2, "store-1")}
	details := map[string][]domain.StoreDetail{
		"store-1": {makeDetail(1, "store-1"), makeDetail(2, "store-1")},
	}

	saver := &fakeSaver{}
	o := New(testConfig(),
		&fakeTxSource{txs: primary},
		&fakeSnapshot{txs: snapshot},
		&fakeDetailSource{byStore: details},
		saver,
		&fakeRecorder{},
		logger.NewWithWriter(testWriter{t}))
	o.Run(context.Background())

	if len(saver.saved) != 2 {
		t.Fatalf("saved %d records, want 2", len(saver.saved))
	}
	if saver.saved[0].TransactionID != "tx-1" || saver.saved[1].TransactionID != "tx-2" {
		t.Errorf("save order = [%s %s], want primary first then snapshot", saver.saved[0].TransactionID, saver.saved[1].TransactionID)
	}
}

func TestInterBatchFloorSpacesBatches(t *testing.T) {
	const (
		records   = 6
		batchSize = 2
		floor     = 60 * time.Millisecond
	)

	var txs []domain.Transaction
	details := map[string][]domain.StoreDetail{}
	for i := 1; i <= records; i++ {
		txs = append(txs, makeTx(i, "store-1"))
		details["store-1"] = append(details["store-1"], makeDetail(i, "store-1"))
	}

	cfg := testConfig()
	cfg.Size = batchSize
	cfg.Floor = floor

	o := New(cfg,
		&fakeTxSource{txs: txs},
		&fakeSnapshot{},
		&fakeDetailSource{byStore: details},
		&fakeSaver{},
		&fakeRecorder{},
		logger.NewWithWriter(testWriter{t}))

	start := time.Now()
	summary := o.Run(context.Background())
	elapsed := time.Since(start)

	if summary.Total != records || summary.Success != records {
		t.Fatalf("summary = total=%d success=%d, want %d/%d", summary.Total, summary.Success, records, records)
	}
	// 3 batches with instantaneous saves: at least 2 inter-batch delays.
	if min := 2 * floor; elapsed < min {
		t.Errorf("run finished in %v, want at least %v of inter-batch spacing", elapsed, min)
	}
}

func TestSchedulerSkipsTicksWhileRunning(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond

	recorder := &fakeRecorder{}
	o := New(cfg,
		&fakeTxSource{},
		&fakeSnapshot{delay: 60 * time.Millisecond},
		&fakeDetailSource{},
		&fakeSaver{},
		recorder,
		logger.NewWithWriter(testWriter{t}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Start(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done
	// Let an in-flight run finish recording.
	time.Sleep(80 * time.Millisecond)

	// ~10 ticks elapsed but each run holds the slot for 60ms; interleaved
	// runs would record far more summaries.
	if got := recorder.count(); got == 0 || got > 3 {
		t.Errorf("recorded %d summaries, want 1-3 with skip-if-running", got)
	}
}
