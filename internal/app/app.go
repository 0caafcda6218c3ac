// Package app wires configuration into a ready-to-run scan pipeline.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/config"
	"github.com/kailas-cloud/lensmatch/internal/crop"
	"github.com/kailas-cloud/lensmatch/internal/db"
	dbRedis "github.com/kailas-cloud/lensmatch/internal/db/redis"
	"github.com/kailas-cloud/lensmatch/internal/db/sqlite"
	"github.com/kailas-cloud/lensmatch/internal/detector/onnx"
	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/ingest"
	"github.com/kailas-cloud/lensmatch/internal/metrics"
	"github.com/kailas-cloud/lensmatch/internal/repository/history"
	"github.com/kailas-cloud/lensmatch/internal/repository/hostcache"
	"github.com/kailas-cloud/lensmatch/internal/repository/matchcache"
	quotarepo "github.com/kailas-cloud/lensmatch/internal/repository/quota"
	"github.com/kailas-cloud/lensmatch/internal/transport/imgur"
	"github.com/kailas-cloud/lensmatch/internal/transport/inference"
	openaiCap "github.com/kailas-cloud/lensmatch/internal/transport/openai"
	"github.com/kailas-cloud/lensmatch/internal/transport/retry"
	"github.com/kailas-cloud/lensmatch/internal/transport/serpapi"
	healthuc "github.com/kailas-cloud/lensmatch/internal/usecase/health"
	"github.com/kailas-cloud/lensmatch/internal/usecase/janitor"
	"github.com/kailas-cloud/lensmatch/internal/usecase/pipeline"
	quotauc "github.com/kailas-cloud/lensmatch/internal/usecase/quota"
)

// Quota counter TTLs: long enough to outlive the period they count.
const (
	quotaDailyTTL   = 48 * time.Hour
	quotaMonthlyTTL = 62 * 24 * time.Hour
)

// App holds the assembled components. Optional parts are nil when not configured.
type App struct {
	Pipeline *pipeline.Service
	History  *history.Repo
	Health   *healthuc.Service
	Janitor  *janitor.Janitor
	Quota    *quotauc.Tracker

	closers []func()
}

// Build assembles the pipeline and its supporting infrastructure.
// On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	var store db.Store
	if cfg.Cache.Enabled() {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("create kv store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		readiness := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
		if err := s.WaitForReady(ctx, readiness); err != nil {
			return nil, fmt.Errorf("kv store not ready: %w", err)
		}
		store = s
		logger.Info("Connected to kv store", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	detector, err := a.buildDetector(cfg.Detector, logger)
	if err != nil {
		return nil, err
	}

	host := buildHost(cfg.Host, store, logger)
	searcher := a.buildSearcher(ctx, cfg.Search, store, logger)

	a.Pipeline = pipeline.New(
		cfg.DomainPipeline(),
		ingest.New(cfg.Pipeline.MaxImagePixels),
		detector,
		crop.New(cfg.Pipeline.CropMaxSide),
		host,
		searcher,
		logger,
	)

	var captioner *openaiCap.Captioner
	if cfg.Caption.Enabled() {
		captioner = openaiCap.NewCaptioner(&openaiCap.Config{
			APIKey:    cfg.Caption.APIKey,
			BaseURL:   cfg.Caption.BaseURL,
			Model:     cfg.Caption.Model,
			MaxTokens: cfg.Caption.MaxTokens,
			Timeout:   time.Duration(cfg.Caption.TimeoutSec) * time.Second,
			Logger:    logger,
		})
		a.Pipeline.WithCaptioner(captioner)
		logger.Info("Captioner enabled", zap.String("model", cfg.Caption.Model))
	}

	var historyDB *sqlite.DB
	if cfg.History.Enabled() {
		historyDB, err = sqlite.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.closers = append(a.closers, func() { _ = historyDB.Close() })
		a.History = history.New(historyDB.Conn())
		a.Pipeline.WithHistory(a.History)
		logger.Info("Scan history enabled", zap.String("path", cfg.History.Path))
	}

	// Optional components go in as nil interfaces, never typed nil pointers.
	health := healthuc.New()
	if store != nil {
		health.With(healthuc.ComponentCache, healthuc.CheckerFunc(store.Ping))
	}
	if hc, ok := detector.(domain.HealthChecker); ok {
		health.With(healthuc.ComponentDetector, hc)
	}
	if historyDB != nil {
		health.With(healthuc.ComponentHistory, historyDB)
	}
	if captioner != nil {
		health.With(healthuc.ComponentCaption, captioner)
	}
	a.Health = health

	maxAge := time.Duration(cfg.Pipeline.WorkspaceMaxAgeMin) * time.Minute
	a.Janitor = janitor.New(cfg.Pipeline.WorkDir, maxAge, logger)
	if a.History != nil {
		a.Janitor.WithHistory(a.History, time.Duration(cfg.History.RetentionDays)*24*time.Hour)
	}

	built = true
	return a, nil
}

// Close releases every opened resource in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildDetector(cfg config.DetectorConfig, logger *zap.Logger) (domain.Detector, error) {
	switch cfg.Driver {
	case "http":
		logger.Info("Using remote detector", zap.String("url", cfg.InferenceURL))
		return inference.New(inference.Config{
			URL: cfg.InferenceURL,
			Retry: retry.Policy{
				Service:      metrics.ServiceDetector,
				Timeout:      time.Duration(cfg.TimeoutSec) * time.Second,
				MaxRetries:   2,
				InitialDelay: 500 * time.Millisecond,
				MaxDelay:     5 * time.Second,
				Logger:       logger,
			},
			Logger: logger,
		}), nil
	case "onnx":
		d, err := onnx.New(onnx.Config{
			ModelPath:         cfg.ModelPath,
			SharedLibraryPath: cfg.SharedLibraryPath,
			Layout:            onnx.Layout(cfg.Layout),
			InputSize:         cfg.InputSize,
			InputName:         cfg.InputName,
			OutputName:        cfg.OutputName,
			ConfThreshold:     cfg.ConfThreshold,
			IoUThreshold:      cfg.IoUThreshold,
			MaxDetections:     cfg.MaxDetections,
			Labels:            cfg.Labels,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("load detector: %w", err)
		}
		a.closers = append(a.closers, d.Close)
		logger.Info("Loaded ONNX detector",
			zap.String("model", cfg.ModelPath),
			zap.String("layout", cfg.Layout),
			zap.Int("input_size", cfg.InputSize),
		)
		return d, nil
	default:
		return nil, fmt.Errorf("unknown detector driver %q", cfg.Driver)
	}
}

// buildHost assembles the upload chain: imgur -> host cache.
func buildHost(cfg config.HostConfig, store db.Store, logger *zap.Logger) domain.ImageHost {
	var host domain.ImageHost = imgur.New(imgur.Config{
		Endpoint: cfg.Endpoint,
		Retry:    retryPolicy(metrics.ServiceHost, cfg.Retry, logger),
		Logger:   logger,
	})
	if store != nil && cfg.CacheTTL > 0 {
		host = hostcache.New(host, store, time.Duration(cfg.CacheTTL)*time.Second, metrics.CacheTotal, logger)
	}
	return host
}

// buildSearcher assembles the search chain: serpapi -> quota guard -> match cache.
// Cache hits never reach the quota.
func (a *App) buildSearcher(
	ctx context.Context, cfg config.SearchConfig, store db.Store, logger *zap.Logger,
) domain.VisualSearcher {
	var searcher domain.VisualSearcher = serpapi.New(serpapi.Config{
		Endpoint: cfg.Endpoint,
		Engine:   cfg.Engine,
		Retry:    retryPolicy(metrics.ServiceSearch, cfg.Retry, logger),
		Logger:   logger,
	})

	if cfg.Quota.DailyLimit > 0 || cfg.Quota.MonthlyLimit > 0 {
		tracker := quotauc.NewTracker(
			metrics.ServiceSearch, cfg.Quota.DailyLimit, cfg.Quota.MonthlyLimit,
			quotauc.ParseAction(cfg.Quota.Action), logger,
		)
		if store != nil {
			tracker.WithStore(ctx, quotarepo.New(store, quotaDailyTTL, quotaMonthlyTTL))
		}
		a.Quota = tracker
		searcher = quotauc.NewGuardedSearcher(searcher, tracker)
		logger.Info("Search quota enabled",
			zap.Int64("daily_limit", cfg.Quota.DailyLimit),
			zap.Int64("monthly_limit", cfg.Quota.MonthlyLimit),
			zap.String("action", cfg.Quota.Action),
		)
	}

	if store != nil && cfg.CacheTTL > 0 {
		searcher = matchcache.New(searcher, store, time.Duration(cfg.CacheTTL)*time.Second, metrics.CacheTotal, logger)
	}
	return searcher
}

func retryPolicy(service string, rc config.RetryConfig, logger *zap.Logger) retry.Policy {
	return retry.Policy{
		Service:      service,
		Timeout:      rc.Timeout(),
		MaxRetries:   rc.MaxRetries,
		InitialDelay: rc.InitialDelay(),
		MaxDelay:     rc.MaxDelay(),
		Logger:       logger,
	}
}
