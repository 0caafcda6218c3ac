// Package pipeline orchestrates one scan: ingest, detect, then crop, upload and search per region.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
	"github.com/kailas-cloud/lensmatch/internal/ingest"
	"github.com/kailas-cloud/lensmatch/internal/logger"
	"github.com/kailas-cloud/lensmatch/internal/metrics"
)

// Service runs scans. Regions of one run are processed sequentially;
// separate runs may execute concurrently.
type Service struct {
	cfg       domain.PipelineConfig
	ingestor  Ingestor
	detector  domain.Detector
	cropper   Cropper
	host      domain.ImageHost
	searcher  domain.VisualSearcher
	captioner domain.Captioner
	history   History
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a pipeline service.
func New(
	cfg domain.PipelineConfig,
	ingestor Ingestor,
	detector domain.Detector,
	cropper Cropper,
	host domain.ImageHost,
	searcher domain.VisualSearcher,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:      cfg.WithDefaults(),
		ingestor: ingestor,
		detector: detector,
		cropper:  cropper,
		host:     host,
		searcher: searcher,
		logger:   log,
		now:      time.Now,
	}
}

// WithCaptioner enables per-crop captions. Caption failures never fail a region.
func (s *Service) WithCaptioner(c domain.Captioner) *Service {
	s.captioner = c
	return s
}

// WithHistory persists every finished report.
func (s *Service) WithHistory(h History) *Service {
	s.history = h
	return s
}

// Run executes one scan of raw and returns its report.
// A non-nil error means the run was aborted before any region was processed;
// the returned report is still populated in that case.
func (s *Service) Run(ctx context.Context, raw []byte, listener Listener) (*scan.Report, error) {
	id := ksuid.New().String()
	ctx, log := logger.With(ctx, s.logger, zap.String("scan_id", id))

	rep := &scan.Report{
		ID:        id,
		State:     scan.Idle,
		StartedAt: s.now(),
		Regions:   []scan.RegionOutcome{},
	}
	m := scan.NewMachine()

	ws, err := ingest.NewWorkspace(s.cfg.WorkDir)
	if err != nil {
		return s.abort(ctx, rep, m, fmt.Errorf("prepare workspace: %w", err))
	}
	defer func() {
		if err := ws.Release(); err != nil {
			log.Warn("Failed to release workspace", zap.String("dir", ws.Dir()), zap.Error(err))
		}
	}()

	img, err := s.ingestor.Ingest(ctx, ws, raw)
	if err != nil {
		return s.abort(ctx, rep, m, fmt.Errorf("ingest image: %w", err))
	}
	s.advance(m, rep, scan.Ingested)

	if err := ctx.Err(); err != nil {
		return s.abort(ctx, rep, m, fmt.Errorf("detect objects: %w", err))
	}
	regions, err := s.detector.Detect(ctx, img.Path)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, domain.ErrDetection) {
			err = fmt.Errorf("%w: %w", domain.ErrDetection, err)
		}
		return s.abort(ctx, rep, m, fmt.Errorf("detect objects: %w", err))
	}
	s.advance(m, rep, scan.Detected)
	metrics.DetectedRegions.Observe(float64(len(regions)))
	log.Info("Objects detected", zap.Int("regions", len(regions)))

	for i, region := range regions {
		outcome := s.processRegion(ctx, ws, img.Pixels, i, region)
		rep.Regions = append(rep.Regions, outcome)
		metrics.ScanRegionsTotal.WithLabelValues(string(outcome.Status)).Inc()
		if listener != nil {
			listener(outcome)
		}
	}

	s.advance(m, rep, scan.Done)
	s.finish(ctx, rep)
	return rep, nil
}

func (s *Service) processRegion(
	ctx context.Context, ws *ingest.Workspace, img image.Image, index int, region domain.DetectedRegion,
) scan.RegionOutcome {
	log := logger.FromContext(ctx).With(zap.Int("region", index))
	out := scan.RegionOutcome{
		Index:   index,
		Region:  region,
		Stage:   scan.StagePending,
		Matches: []domain.VisualMatch{},
	}

	asset, png, err := s.cropper.Crop(img, region, ws.Dir(), index)
	if err != nil {
		log.Warn("Crop failed", zap.Stringer("box", region.Box), zap.Error(err))
		out.Status = scan.StatusCropFailed
		out.Error = err.Error()
		return out
	}
	out.Stage = scan.StageCropped
	out.CropPNG = png
	out.CropWidth = asset.Width
	out.CropHeight = asset.Height

	if s.captioner != nil {
		caption, err := s.captioner.Caption(ctx, png)
		if err != nil {
			log.Warn("Caption failed", zap.Error(err))
		} else {
			out.Caption = caption
		}
	}

	url, err := s.host.Upload(ctx, asset.LocalPath, s.cfg.HostCredential)
	if err != nil {
		log.Warn("Upload failed", zap.Error(err))
		out.Status = scan.StatusUploadFailed
		out.Error = domain.UpstreamMessage(err)
		return out
	}
	out.Stage = scan.StageUploaded
	out.HostedURL = url

	matches, err := s.searcher.Search(ctx, domain.SearchQuery{
		ImageURL:   url,
		Country:    s.cfg.SearchCountry,
		Credential: s.cfg.SearchCredential,
	})
	if err != nil {
		log.Warn("Visual search failed", zap.String("url", url), zap.Error(err))
		out.Status = scan.StatusSearchFailed
		if errors.Is(err, domain.ErrMalformedResponse) {
			out.Status = scan.StatusMalformed
		}
		out.Error = domain.UpstreamMessage(err)
		return out
	}
	out.Stage = scan.StageSearched
	out.TotalMatches = len(matches)
	out.Matches = s.cfg.Retail.Apply(matches)

	out.Status = scan.StatusNoMatches
	if len(out.Matches) > 0 {
		out.Status = scan.StatusMatched
	}
	log.Debug("Region processed",
		zap.String("status", string(out.Status)),
		zap.Int("matches", out.TotalMatches),
		zap.Int("surfaced", len(out.Matches)),
	)
	return out
}

func (s *Service) abort(ctx context.Context, rep *scan.Report, m *scan.Machine, err error) (*scan.Report, error) {
	s.advance(m, rep, scan.Aborted)
	rep.Error = err.Error()
	logger.FromContext(ctx).Error("Scan aborted", zap.Error(err))
	s.finish(ctx, rep)
	return rep, err
}

// advance applies a transition the orchestrator itself guarantees to be legal.
func (s *Service) advance(m *scan.Machine, rep *scan.Report, next scan.State) {
	if err := m.Advance(next); err != nil {
		s.logger.DPanic("Illegal scan transition", zap.String("scan_id", rep.ID), zap.Error(err))
		return
	}
	rep.State = m.State()
}

func (s *Service) finish(ctx context.Context, rep *scan.Report) {
	rep.FinishedAt = s.now()
	metrics.ScanRunsTotal.WithLabelValues(string(rep.State)).Inc()
	metrics.ScanDuration.Observe(rep.Duration().Seconds())

	log := logger.FromContext(ctx)
	counts := rep.CountByStatus()
	log.Info("Scan finished",
		zap.String("state", string(rep.State)),
		zap.Int("regions", len(rep.Regions)),
		zap.Int("matched", counts[scan.StatusMatched]),
		zap.Duration("duration", rep.Duration()),
	)

	if s.history == nil {
		return
	}
	// The request context may already be cancelled; history is written regardless.
	if err := s.history.Save(context.WithoutCancel(ctx), rep); err != nil {
		log.Warn("Failed to save scan history", zap.Error(err))
	}
}
