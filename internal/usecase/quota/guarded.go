package quota

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/logger"
	"github.com/kailas-cloud/lensmatch/internal/metrics"
)

// Checker is the local interface for quota enforcement.
type Checker interface {
	Check(ctx context.Context) error
	Record(calls int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// GuardedSearcher wraps a VisualSearcher with quota enforcement.
// A call counts against the quota once the upstream answered, whatever it said.
type GuardedSearcher struct {
	inner domain.VisualSearcher
	quota Checker
}

// NewGuardedSearcher wraps inner. A nil quota disables enforcement.
func NewGuardedSearcher(inner domain.VisualSearcher, quota Checker) *GuardedSearcher {
	return &GuardedSearcher{inner: inner, quota: quota}
}

// Search implements domain.VisualSearcher.
func (g *GuardedSearcher) Search(ctx context.Context, q domain.SearchQuery) ([]domain.VisualMatch, error) {
	if g.quota != nil {
		if err := g.quota.Check(ctx); err != nil {
			logger.FromContext(ctx).Error("Search quota exceeded", zap.Error(err))
			return nil, fmt.Errorf("quota check: %w", err)
		}
	}

	matches, err := g.inner.Search(ctx, q)

	if g.quota != nil && reachedUpstream(err) {
		g.quota.Record(1)
		remaining := metrics.SearchQuotaRemaining
		remaining.WithLabelValues("daily").Set(float64(g.quota.RemainingDaily()))
		remaining.WithLabelValues("monthly").Set(float64(g.quota.RemainingMonthly()))
	}

	if err != nil {
		return nil, fmt.Errorf("visual search: %w", err)
	}
	return matches, nil
}

func reachedUpstream(err error) bool {
	if err == nil {
		return true
	}
	var se *domain.SearchError
	return errors.As(err, &se) || errors.Is(err, domain.ErrMalformedResponse)
}
