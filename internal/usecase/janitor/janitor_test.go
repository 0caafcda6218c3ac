package janitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/ingest"
)

type mockPruner struct {
	cutoff time.Time
	n      int64
	err    error
}

func (m *mockPruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.cutoff = cutoff
	return m.n, m.err
}

func mkdir(t *testing.T, base, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(base, name)
	if err := os.Mkdir(path, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, "upload.jpg"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestSweep_RemovesOnlyStaleRunDirs(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stale := mkdir(t, base, ingest.RunDirPrefix+uuid.NewString(), now.Add(-2*time.Hour))
	fresh := mkdir(t, base, ingest.RunDirPrefix+uuid.NewString(), now.Add(-5*time.Minute))
	foreign := mkdir(t, base, "keep-me", now.Add(-48*time.Hour))
	fake := mkdir(t, base, ingest.RunDirPrefix+"not-a-uuid", now.Add(-48*time.Hour))

	j := New(base, time.Hour, zap.NewNop())
	j.now = func() time.Time { return now }

	res, err := j.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.RemovedDirs != 1 {
		t.Errorf("expected 1 removed dir, got %d", res.RemovedDirs)
	}
	if exists(stale) {
		t.Error("stale run dir should be removed")
	}
	for _, p := range []string{fresh, foreign, fake} {
		if !exists(p) {
			t.Errorf("%s should be kept", filepath.Base(p))
		}
	}
}

func TestSweep_MissingWorkDir(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "absent"), time.Hour, zap.NewNop())
	res, err := j.Sweep(context.Background())
	if err != nil {
		t.Fatalf("missing work dir should not fail: %v", err)
	}
	if res.RemovedDirs != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSweep_PrunesHistory(t *testing.T) {
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	p := &mockPruner{n: 3}
	j := New(t.TempDir(), time.Hour, zap.NewNop()).WithHistory(p, 30*24*time.Hour)
	j.now = func() time.Time { return now }

	res, err := j.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.PrunedReports != 3 {
		t.Errorf("expected 3 pruned, got %d", res.PrunedReports)
	}
	if want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC); !p.cutoff.Equal(want) {
		t.Errorf("cutoff: got %v want %v", p.cutoff, want)
	}
}

func TestSweep_HistoryError(t *testing.T) {
	p := &mockPruner{err: errors.New("database is locked")}
	j := New(t.TempDir(), time.Hour, zap.NewNop()).WithHistory(p, time.Hour)

	if _, err := j.Sweep(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	j := New(t.TempDir(), time.Hour, zap.NewNop())
	if err := j.Start("not a schedule"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStartStop(t *testing.T) {
	j := New(t.TempDir(), time.Hour, zap.NewNop())
	if err := j.Start("@every 1h"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
}
