package lensmatch

import (
	"context"

	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
	healthuc "github.com/kailas-cloud/lensmatch/internal/usecase/health"
	"github.com/kailas-cloud/lensmatch/internal/usecase/pipeline"
)

// --- scanRunner mock ---

type mockRunner struct {
	runFn func(ctx context.Context, raw []byte, listener pipeline.Listener) (*scan.Report, error)
}

func (m *mockRunner) Run(ctx context.Context, raw []byte, listener pipeline.Listener) (*scan.Report, error) {
	return m.runFn(ctx, raw, listener)
}

// --- historyReader mock ---

type mockHistory struct {
	getFn  func(ctx context.Context, id string) (*scan.Report, error)
	listFn func(ctx context.Context, limit int) ([]*scan.Report, error)
}

func (m *mockHistory) Get(ctx context.Context, id string) (*scan.Report, error) {
	return m.getFn(ctx, id)
}

func (m *mockHistory) List(ctx context.Context, limit int) ([]*scan.Report, error) {
	return m.listFn(ctx, limit)
}

// --- healthUseCase mock ---

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

// --- helpers ---

func testClient(runner scanRunner, history historyReader) *Client {
	obs, _ := newObserver(nil, nil)
	return &Client{
		runner:  runner,
		history: history,
		obs:     obs,
	}
}
