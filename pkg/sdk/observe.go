package lensmatch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
)

// Call outcomes.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected" // the upload was not a usable image
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

type clientMetrics struct {
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	regions      *prometheus.CounterVec
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	m := &clientMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lensmatch",
			Subsystem: "sdk",
			Name:      "calls_total",
			Help:      "Client calls by method and outcome.",
		}, []string{"call", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lensmatch",
			Subsystem: "sdk",
			Name:      "call_duration_seconds",
			Help:      "Client call duration in seconds.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"call"}),
		regions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lensmatch",
			Subsystem: "sdk",
			Name:      "regions_total",
			Help:      "Regions returned by in-process scans, by status.",
		}, []string{"status"}),
	}
	if err := registerOrReuse(reg, &m.calls); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.callDuration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.regions); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers c, or swaps in the collector already registered under the same name.
// Several clients can then share one registry.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		return fmt.Errorf("lensmatch: register metric: %w", err)
	}
	existing, ok := dup.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("lensmatch: metric registered with a different type %T", dup.ExistingCollector)
	}
	*c = existing
	return nil
}

// observer logs and counts client calls. Both sinks are optional.
type observer struct {
	logger  *slog.Logger
	metrics *clientMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg != nil {
		m, err := newClientMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

// outcome maps a call error onto a low-cardinality label.
func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, domain.ErrInvalidImage):
		return outcomeRejected
	case errors.Is(err, domain.ErrNotFound):
		return outcomeNotFound
	default:
		return outcomeError
	}
}

// observe records one client call.
func (o *observer) observe(call string, start time.Time, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)
	res := outcome(err)

	if o.metrics != nil {
		o.metrics.calls.WithLabelValues(call, res).Inc()
		o.metrics.callDuration.WithLabelValues(call).Observe(dur.Seconds())
	}
	if o.logger == nil {
		return
	}
	if err != nil {
		o.logger.Warn("lensmatch call failed", "call", call, "outcome", res, "duration", dur, "error", err)
		return
	}
	o.logger.Debug("lensmatch call done", "call", call, "duration", dur)
}

// scanFinished records a scan call plus the statuses of its regions.
func (o *observer) scanFinished(start time.Time, rep *scan.Report, err error) {
	if o == nil {
		return
	}
	o.observe("scan", start, err)
	if rep == nil {
		return
	}

	if o.metrics != nil {
		for _, r := range rep.Regions {
			o.metrics.regions.WithLabelValues(string(r.Status)).Inc()
		}
	}
	if o.logger != nil && err == nil {
		o.logger.Info("lensmatch scan done",
			"scan_id", rep.ID,
			"regions", len(rep.Regions),
			"duration", rep.FinishedAt.Sub(rep.StartedAt),
		)
	}
}
