// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_watermark_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_watermark_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Pipeline metrics
var (
	// InterceptionsTotal counts create-upload requests by final pipeline state.
	InterceptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_watermark_interceptions_total",
			Help: "Total number of intercepted create-upload requests by final state",
		},
		[]string{"state"},
	)

	// TransformsTotal counts transform attempts by media kind and outcome.
	TransformsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_watermark_transforms_total",
			Help: "Total number of watermark transforms by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	TransformDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_watermark_transform_duration_seconds",
			Help:    "Watermark transform duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	// CapabilityAvailable reports the startup capability probe (1 = available).
	CapabilityAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_watermark_capability_available",
			Help: "Whether a watermark engine was found at startup (1 = available)",
		},
		[]string{"kind"},
	)
)

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// BoolGauge converts a bool to a gauge value.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
