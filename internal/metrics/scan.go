package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "lensmatch"

// Scan pipeline Prometheus metrics.
var (
	ScanRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_runs_total",
			Help:      "Total scan runs by terminal state",
		},
		[]string{"state"}, // "done" / "aborted"
	)

	ScanRegionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_regions_total",
			Help:      "Total processed regions by outcome status",
		},
		[]string{"status"},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "End-to-end scan duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)

	DetectedRegions = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_detected_regions",
			Help:      "Regions returned by the detector per scan",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)
)

var metricsRegistered bool

// RegisterMetrics registers the API, scan, external-call and cache metrics. Must be called once from main.
func RegisterMetrics() {
	if metricsRegistered {
		return
	}
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(uploadBytes)
	prometheus.MustRegister(ScanRunsTotal)
	prometheus.MustRegister(ScanRegionsTotal)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(DetectedRegions)
	prometheus.MustRegister(ExternalRequestsTotal)
	prometheus.MustRegister(ExternalRequestDuration)
	prometheus.MustRegister(ExternalRetriesTotal)
	prometheus.MustRegister(CacheTotal)
	prometheus.MustRegister(SearchQuotaRemaining)
	metricsRegistered = true
}
