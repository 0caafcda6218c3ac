// Package janitor removes run workspaces left behind by crashed processes and prunes old history.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/ingest"
)

// HistoryPruner deletes reports started before a cutoff.
type HistoryPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result summarizes one sweep.
type Result struct {
	RemovedDirs   int
	PrunedReports int64
}

// Janitor sweeps the work directory on a cron schedule.
type Janitor struct {
	workDir   string
	maxAge    time.Duration
	history   HistoryPruner
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
	cron      *cron.Cron
}

// New creates a janitor for workDir. Run directories older than maxAge are removed.
func New(workDir string, maxAge time.Duration, logger *zap.Logger) *Janitor {
	if workDir == "" {
		workDir = ingest.DefaultBaseDir()
	}
	return &Janitor{
		workDir: workDir,
		maxAge:  maxAge,
		logger:  logger,
		now:     time.Now,
	}
}

// WithHistory also prunes reports older than retention on every sweep.
func (j *Janitor) WithHistory(h HistoryPruner, retention time.Duration) *Janitor {
	j.history = h
	j.retention = retention
	return j
}

// Sweep runs one cleanup pass. Failures on individual directories are logged and skipped.
func (j *Janitor) Sweep(ctx context.Context) (Result, error) {
	var res Result
	now := j.now()

	entries, err := os.ReadDir(j.workDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return res, fmt.Errorf("read work dir: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() || !ingest.IsRunDir(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < j.maxAge {
			continue
		}
		path := filepath.Join(j.workDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("Failed to remove stale workspace", zap.String("dir", path), zap.Error(err))
			continue
		}
		res.RemovedDirs++
	}

	if j.history != nil && j.retention > 0 {
		n, err := j.history.DeleteOlderThan(ctx, now.Add(-j.retention))
		if err != nil {
			return res, fmt.Errorf("prune history: %w", err)
		}
		res.PrunedReports = n
	}

	if res.RemovedDirs > 0 || res.PrunedReports > 0 {
		j.logger.Info("Janitor sweep",
			zap.Int("removed_dirs", res.RemovedDirs),
			zap.Int64("pruned_reports", res.PrunedReports),
		)
	}
	return res, nil
}

// Start schedules Sweep with a standard cron spec or descriptor such as "@every 15m".
func (j *Janitor) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := j.Sweep(context.Background()); err != nil {
			j.logger.Error("Janitor sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule janitor %q: %w", schedule, err)
	}
	c.Start()
	j.cron = c
	j.logger.Info("Janitor started", zap.String("schedule", schedule), zap.String("work_dir", j.workDir))
	return nil
}

// Stop halts the schedule and waits for a running sweep, bounded by ctx.
func (j *Janitor) Stop(ctx context.Context) {
	if j.cron == nil {
		return
	}
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}
