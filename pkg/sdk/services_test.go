package lensmatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
	healthuc "github.com/kailas-cloud/lensmatch/internal/usecase/health"
	"github.com/kailas-cloud/lensmatch/internal/usecase/pipeline"
)

func sampleReport() *scan.Report {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &scan.Report{
		ID:         "2aB",
		State:      scan.Done,
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Regions: []scan.RegionOutcome{
			{
				Index: 0,
				Region: domain.DetectedRegion{
					Box: domain.BoundingBox{X1: 1, Y1: 2, X2: 30, Y2: 40}, Confidence: 0.9, ClassID: 56, Label: "chair",
				},
				Status:       scan.StatusMatched,
				HostedURL:    "https://i.imgur.com/a.png",
				CropPNG:      []byte{1, 2, 3},
				Matches:      []domain.VisualMatch{{Title: "Chair", Link: "https://www.ikea.com/chair"}},
				TotalMatches: 4,
			},
			{
				Index:  1,
				Status: scan.StatusUploadFailed,
				Error:  "Rate limit exceeded",
			},
		},
	}
}

// --- Scan ---

func TestScan(t *testing.T) {
	var gotRaw []byte
	runner := &mockRunner{
		runFn: func(_ context.Context, raw []byte, listener pipeline.Listener) (*scan.Report, error) {
			gotRaw = raw
			if listener != nil {
				t.Error("listener should be nil without OnRegion")
			}
			return sampleReport(), nil
		},
	}

	c := testClient(runner, nil)
	rep, err := c.Scan(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(gotRaw) != "img" {
		t.Errorf("raw = %q, want img", gotRaw)
	}
	if rep.ID != "2aB" || rep.State != StateDone {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Regions) != 2 {
		t.Fatalf("regions = %d, want 2", len(rep.Regions))
	}
	if rep.Regions[0].Status != StatusMatched || rep.Regions[1].Status != StatusUploadFailed {
		t.Errorf("statuses = %q, %q", rep.Regions[0].Status, rep.Regions[1].Status)
	}
}

func TestScan_OnRegion(t *testing.T) {
	runner := &mockRunner{
		runFn: func(_ context.Context, _ []byte, listener pipeline.Listener) (*scan.Report, error) {
			rep := sampleReport()
			for _, o := range rep.Regions {
				listener(o)
			}
			return rep, nil
		},
	}

	var seen []int
	c := testClient(runner, nil)
	_, err := c.Scan(context.Background(), nil, OnRegion(func(r Region) {
		seen = append(seen, r.Index)
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 1 {
		t.Errorf("seen = %v, want [0 1]", seen)
	}
}

func TestScan_Aborted(t *testing.T) {
	runner := &mockRunner{
		runFn: func(_ context.Context, _ []byte, _ pipeline.Listener) (*scan.Report, error) {
			return &scan.Report{ID: "x", State: scan.Aborted, Error: "invalid image"}, domain.ErrInvalidImage
		},
	}

	c := testClient(runner, nil)
	rep, err := c.Scan(context.Background(), []byte("not an image"))
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("err = %v, want ErrInvalidImage", err)
	}
	if rep == nil || !rep.Aborted() {
		t.Fatalf("report = %+v, want aborted", rep)
	}
	if len(rep.Regions) != 0 {
		t.Errorf("regions = %d, want 0", len(rep.Regions))
	}
}

func TestScanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte("jpeg bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	var gotRaw []byte
	runner := &mockRunner{
		runFn: func(_ context.Context, raw []byte, _ pipeline.Listener) (*scan.Report, error) {
			gotRaw = raw
			return sampleReport(), nil
		},
	}

	c := testClient(runner, nil)
	if _, err := c.ScanFile(context.Background(), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(gotRaw) != "jpeg bytes" {
		t.Errorf("raw = %q", gotRaw)
	}
}

func TestScanFile_Missing(t *testing.T) {
	runner := &mockRunner{
		runFn: func(_ context.Context, _ []byte, _ pipeline.Listener) (*scan.Report, error) {
			t.Fatal("runner should not be called")
			return nil, nil
		},
	}

	c := testClient(runner, nil)
	if _, err := c.ScanFile(context.Background(), filepath.Join(t.TempDir(), "nope.jpg")); err == nil {
		t.Fatal("expected error")
	}
}

// --- History ---

func TestGetScan(t *testing.T) {
	hist := &mockHistory{
		getFn: func(_ context.Context, id string) (*scan.Report, error) {
			if id != "2aB" {
				return nil, domain.ErrNotFound
			}
			return sampleReport().WithoutCrops(), nil
		},
	}

	c := testClient(nil, hist)
	rep, err := c.GetScan(context.Background(), "2aB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.ID != "2aB" {
		t.Errorf("ID = %q", rep.ID)
	}
	if len(rep.Regions[0].Crop) != 0 {
		t.Error("history reports should carry no crops")
	}

	_, err = c.GetScan(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListScans(t *testing.T) {
	var gotLimit int
	hist := &mockHistory{
		listFn: func(_ context.Context, limit int) ([]*scan.Report, error) {
			gotLimit = limit
			return []*scan.Report{sampleReport(), {ID: "older", State: scan.Aborted}}, nil
		},
	}

	c := testClient(nil, hist)
	reps, err := c.ListScans(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 5 {
		t.Errorf("limit = %d, want 5", gotLimit)
	}
	if len(reps) != 2 || reps[1].ID != "older" {
		t.Errorf("reports = %+v", reps)
	}
}

func TestListScans_Error(t *testing.T) {
	hist := &mockHistory{
		listFn: func(_ context.Context, _ int) ([]*scan.Report, error) {
			return nil, errors.New("disk I/O error")
		},
	}

	c := testClient(nil, hist)
	if _, err := c.ListScans(context.Background(), 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestHistoryDisabled(t *testing.T) {
	c := testClient(nil, nil)

	if _, err := c.GetScan(context.Background(), "x"); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("GetScan err = %v, want ErrHistoryDisabled", err)
	}
	if _, err := c.ListScans(context.Background(), 10); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("ListScans err = %v, want ErrHistoryDisabled", err)
	}
}

// --- Health ---

func TestHealth(t *testing.T) {
	c := testClient(nil, nil)
	c.healthSvc = &mockHealth{report: healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{
			healthuc.ComponentCache:   healthuc.CheckError,
			healthuc.ComponentHistory: healthuc.CheckOK,
		},
	}}

	h := c.Health(context.Background())
	if h.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", h.Status)
	}
	if h.Checks["cache"] != "error" || h.Checks["history"] != "ok" {
		t.Errorf("Checks = %v", h.Checks)
	}
}

// --- Close ---

func TestClose_Once(t *testing.T) {
	calls := 0
	c := testClient(nil, nil)
	c.closeFn = func() { calls++ }

	c.Close()
	c.Close()
	if calls != 1 {
		t.Errorf("close calls = %d, want 1", calls)
	}
}

// --- Observer ---

func TestObserver_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runErr := domain.ErrDetection
	runner := &mockRunner{
		runFn: func(_ context.Context, _ []byte, _ pipeline.Listener) (*scan.Report, error) {
			if runErr != nil {
				return &scan.Report{State: scan.Aborted}, runErr
			}
			return sampleReport(), nil
		},
	}
	c := testClient(runner, nil)
	c.obs = obs

	_, _ = c.Scan(context.Background(), nil)
	_, _ = c.Scan(context.Background(), nil)
	runErr = domain.ErrInvalidImage
	_, _ = c.Scan(context.Background(), nil)
	runErr = nil
	_, _ = c.Scan(context.Background(), nil)

	cases := []struct {
		outcome string
		want    float64
	}{
		{outcomeError, 2},
		{outcomeRejected, 1},
		{outcomeOK, 1},
	}
	for _, tc := range cases {
		if got := testutil.ToFloat64(obs.metrics.calls.WithLabelValues("scan", tc.outcome)); got != tc.want {
			t.Errorf("scan %s = %v, want %v", tc.outcome, got, tc.want)
		}
	}

	if got := testutil.ToFloat64(obs.metrics.regions.WithLabelValues(StatusMatched)); got != 1 {
		t.Errorf("matched regions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.metrics.regions.WithLabelValues(StatusUploadFailed)); got != 1 {
		t.Errorf("upload_failed regions = %v, want 1", got)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, outcomeOK},
		{fmt.Errorf("decode: %w", domain.ErrInvalidImage), outcomeRejected},
		{domain.ErrNotFound, outcomeNotFound},
		{domain.ErrSearch, outcomeError},
	}
	for _, tc := range tests {
		if got := outcome(tc.err); got != tc.want {
			t.Errorf("outcome(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestObserver_ReuseRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("second registration should reuse collectors: %v", err)
	}
}

// --- New ---

func TestNew_ValidationError(t *testing.T) {
	_, err := New(context.Background(), WithONNXModel("models/y.onnx"))
	if err == nil {
		t.Fatal("expected error without image host and search credentials")
	}
}

func TestNew_MissingModel(t *testing.T) {
	_, err := New(context.Background(),
		WithImgur("cid"),
		WithSerpAPI("key"),
	)
	if err == nil {
		t.Fatal("expected error without a detector model")
	}
}
