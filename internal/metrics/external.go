package metrics

import "github.com/prometheus/client_golang/prometheus"

// Service label values for external calls.
const (
	ServiceDetector = "detector"
	ServiceHost     = "image_host"
	ServiceSearch   = "visual_search"
	ServiceCaption  = "caption"
)

// External call Prometheus metrics.
var (
	ExternalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_requests_total",
			Help:      "Total requests to external services",
		},
		[]string{"service", "status"}, // "ok" / "error"
	)

	ExternalRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_request_duration_seconds",
			Help:      "External request duration in seconds, retries included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service"},
	)

	ExternalRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_retries_total",
			Help:      "Retried attempts against external services",
		},
		[]string{"service"},
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_total",
			Help:      "Cache hits and misses",
		},
		[]string{"cache", "result"}, // "hit" / "miss"
	)

	SearchQuotaRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "search_quota_remaining",
			Help:      "Remaining visual search calls",
		},
		[]string{"period"},
	)
)
