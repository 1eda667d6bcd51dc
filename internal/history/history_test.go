package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/tx-collector/internal/domain"
	"github.com/dvloznov/tx-collector/internal/filedb"
	"github.com/dvloznov/tx-collector/internal/logger"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, err := filedb.Open(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatalf("open filedb: %v", err)
	}
	r := NewRecorder(db, logger.NewWithWriter(testWriter{t}))
	if err := r.Init(); err != nil {
		t.Fatalf("init recorder: %v", err)
	}
	return r
}

func TestRecordAndGetAll(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	summaries := []domain.RunSummary{
		{StartedAt: now, EndedAt: now.Add(time.Second), Total: 10, Success: 7, Fail: 3},
		{StartedAt: now.Add(time.Minute), EndedAt: now.Add(time.Minute + time.Second), Error: "fetch exploded"},
	}
	for _, s := range summaries {
		r.Record(ctx, s)
	}

	got := r.GetAll(ctx)
	if len(got) != 2 {
		t.Fatalf("GetAll returned %d summaries, want 2", len(got))
	}
	if got[0].Total != 10 || got[0].Success != 7 || got[0].Fail != 3 || got[0].Error != "" {
		t.Errorf("first summary = %+v, want total=10 success=7 fail=3 no error", got[0])
	}
	if got[1].Error != "fetch exploded" {
		t.Errorf("second summary error = %q, want %q", got[1].Error, "fetch exploded")
	}
	if !got[0].StartedAt.Equal(now) {
		t.Errorf("first summary startedAt = %v, want %v", got[0].StartedAt, now)
	}
}

func TestGetAllEmptyLog(t *testing.T) {
	db, err := filedb.Open(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatalf("open filedb: %v", err)
	}
	// No Init: the history collection does not exist yet.
	r := NewRecorder(db, logger.NewWithWriter(testWriter{t}))

	if got := r.GetAll(context.Background()); len(got) != 0 {
		t.Errorf("GetAll on missing log returned %d summaries, want 0", len(got))
	}
}
