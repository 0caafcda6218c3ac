package lensmatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/app"
	"github.com/kailas-cloud/lensmatch/internal/config"
	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
	"github.com/kailas-cloud/lensmatch/internal/usecase/pipeline"
)

// Internal interfaces, swapped for mocks in tests.
type scanRunner interface {
	Run(ctx context.Context, raw []byte, listener pipeline.Listener) (*scan.Report, error)
}

type historyReader interface {
	Get(ctx context.Context, id string) (*scan.Report, error)
	List(ctx context.Context, limit int) ([]*scan.Report, error)
}

// Client is the lensmatch SDK entry point. It is safe for concurrent use.
type Client struct {
	runner    scanRunner
	history   historyReader // nil when history is disabled
	healthSvc healthUseCase
	obs       *observer

	closeOnce sync.Once
	closeFn   func()
}

// New builds the scan pipeline in-process.
// The provided context is used for the initial cache readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, o := range opts {
		o.apply(cc)
	}

	obs, err := newObserver(cc.logger, cc.metricsReg)
	if err != nil {
		return nil, err
	}

	cfg := cc.toConfig()
	cfg.ApplyDefaults()
	if err := cfg.ValidatePipeline(); err != nil {
		return nil, fmt.Errorf("lensmatch: %w", err)
	}

	a, err := app.Build(ctx, &cfg, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("lensmatch: %w", err)
	}

	c := &Client{
		runner:    a.Pipeline,
		healthSvc: a.Health,
		obs:       obs,
		closeFn:   a.Close,
	}
	if a.History != nil {
		c.history = a.History
	}
	return c, nil
}

func (cc *clientConfig) toConfig() config.Config {
	var cfg config.Config

	if cc.inferenceURL != "" {
		cfg.Detector.Driver = "http"
		cfg.Detector.InferenceURL = cc.inferenceURL
	} else {
		cfg.Detector.Driver = "onnx"
		cfg.Detector.ModelPath = cc.modelPath
		cfg.Detector.Labels = cc.labels
	}

	cfg.Host.ClientID = cc.imgurClientID
	cfg.Search.APIKey = cc.serpAPIKey
	cfg.Search.Country = cc.country

	cfg.Pipeline.WorkDir = cc.workDir
	cfg.Pipeline.CropMaxSide = cc.cropMaxSide
	cfg.Pipeline.MaxImagePixels = cc.maxPixels
	cfg.Pipeline.Retail.Enabled = cc.retailFilter
	cfg.Pipeline.Retail.Domains = cc.retailDomains

	cfg.Cache.Addrs = cc.cacheAddrs
	cfg.Cache.Password = cc.cachePassword
	cfg.History.Path = cc.historyPath
	cfg.Caption.APIKey = cc.captionKey
	return cfg
}

// ScanOption tunes a single scan.
type ScanOption func(*scanOptions)

type scanOptions struct {
	onRegion func(Region)
}

// OnRegion calls fn with each region as soon as it is finished, in detection order.
func OnRegion(fn func(Region)) ScanOption {
	return func(o *scanOptions) {
		o.onRegion = fn
	}
}

// Scan runs the full pipeline on an encoded JPEG or PNG image.
// Per-region failures are reported in the returned regions. A non-nil error
// means the scan was aborted; the report is still returned in that case.
func (c *Client) Scan(ctx context.Context, img []byte, opts ...ScanOption) (*Report, error) {
	var so scanOptions
	for _, o := range opts {
		o(&so)
	}

	var listener pipeline.Listener
	if so.onRegion != nil {
		listener = func(o scan.RegionOutcome) { so.onRegion(regionFromDomain(o)) }
	}

	start := time.Now()
	rep, err := c.runner.Run(ctx, img, listener)
	c.obs.scanFinished(start, rep, err)
	return reportFromDomain(rep), err
}

// ScanFile reads an image from disk and scans it.
func (c *Client) ScanFile(ctx context.Context, path string, opts ...ScanOption) (*Report, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("lensmatch: read image: %w", err)
	}
	return c.Scan(ctx, data, opts...)
}

// GetScan loads a finished scan from history. Crops are not stored.
func (c *Client) GetScan(ctx context.Context, id string) (*Report, error) {
	if c.history == nil {
		return nil, domain.ErrHistoryDisabled
	}
	start := time.Now()
	rep, err := c.history.Get(ctx, id)
	c.obs.observe("get_scan", start, err)
	if err != nil {
		return nil, err
	}
	return reportFromDomain(rep), nil
}

// ListScans returns the most recent scans, newest first.
// limit <= 0 selects the default page size.
func (c *Client) ListScans(ctx context.Context, limit int) ([]*Report, error) {
	if c.history == nil {
		return nil, domain.ErrHistoryDisabled
	}
	start := time.Now()
	reps, err := c.history.List(ctx, limit)
	c.obs.observe("list_scans", start, err)
	if err != nil {
		return nil, err
	}
	out := make([]*Report, 0, len(reps))
	for _, r := range reps {
		out = append(out, reportFromDomain(r))
	}
	return out, nil
}

// Close releases the detector session, cache connection and history database.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.closeFn != nil {
			c.closeFn()
		}
	})
}
