package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/lensmatch/internal/crop"
	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
	"github.com/kailas-cloud/lensmatch/internal/ingest"
)

// --- Mock Detector ---

type mockDetector struct {
	regions []domain.DetectedRegion
	err     error
	calls   int
}

func (m *mockDetector) Detect(_ context.Context, _ string) ([]domain.DetectedRegion, error) {
	m.calls++
	return m.regions, m.err
}

// --- Counting Cropper ---

type countingCropper struct {
	inner   *crop.Cropper
	calls   int
	indices []int
}

func (c *countingCropper) Crop(
	img image.Image, region domain.DetectedRegion, outputDir string, index int,
) (domain.CroppedAsset, []byte, error) {
	c.calls++
	c.indices = append(c.indices, index)
	return c.inner.Crop(img, region, outputDir, index)
}

// --- Mock ImageHost ---

type mockHost struct {
	url   string
	errs  map[int]error // by call number, zero-based
	calls int
	paths []string
}

func (m *mockHost) Upload(_ context.Context, localPath, _ string) (string, error) {
	n := m.calls
	m.calls++
	m.paths = append(m.paths, localPath)
	if err, ok := m.errs[n]; ok {
		return "", err
	}
	return m.url, nil
}

// --- Mock VisualSearcher ---

type mockSearcher struct {
	matches []domain.VisualMatch
	err     error
	calls   int
	queries []domain.SearchQuery
}

func (m *mockSearcher) Search(_ context.Context, q domain.SearchQuery) ([]domain.VisualMatch, error) {
	m.calls++
	m.queries = append(m.queries, q)
	return m.matches, m.err
}

// --- Mock Captioner ---

type mockCaptioner struct {
	caption string
	err     error
}

func (m *mockCaptioner) Caption(_ context.Context, _ []byte) (string, error) {
	return m.caption, m.err
}

// --- Mock History ---

type mockHistory struct {
	mu    sync.Mutex
	saved []*scan.Report
}

func (m *mockHistory) Save(_ context.Context, rep *scan.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, rep)
	return nil
}

// --- Helpers ---

type fixture struct {
	workDir  string
	detector *mockDetector
	cropper  *countingCropper
	host     *mockHost
	searcher *mockSearcher
	svc      *Service
}

func newFixture(t *testing.T, retail domain.RetailFilter) *fixture {
	t.Helper()
	f := &fixture{
		workDir:  t.TempDir(),
		detector: &mockDetector{},
		cropper:  &countingCropper{inner: crop.New(0)},
		host:     &mockHost{url: "https://img.host/abc.png"},
		searcher: &mockSearcher{},
	}
	cfg := domain.PipelineConfig{
		HostCredential:   "client-id",
		SearchCredential: "serp-key",
		WorkDir:          f.workDir,
		Retail:           retail,
	}
	f.svc = New(cfg, ingest.New(0), f.detector, f.cropper, f.host, f.searcher, nil)
	return f
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func box(x1, y1, x2, y2 int) domain.DetectedRegion {
	return domain.DetectedRegion{Box: domain.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}, Confidence: 0.9}
}

func assertNoRunDirs(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ingest.RunDirPrefix) {
			t.Errorf("workspace %s was not released", e.Name())
		}
	}
}
