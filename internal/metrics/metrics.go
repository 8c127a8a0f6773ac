// Package metrics exposes Prometheus collectors for the crawler and its read API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourceRequestsTotal        *prometheus.CounterVec
	sourceRequestSeconds       *prometheus.HistogramVec
	sourceRetriesTotal         prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	pacingDelaySeconds         prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sourceRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_source_requests_total",
				Help: "Requests sent to the remote catalog, labeled by endpoint and result.",
			},
			[]string{"endpoint", "result"},
		)

		sourceRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_source_request_duration_seconds",
				Help:    "Latency of remote catalog requests, labeled by endpoint.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"endpoint"},
		)

		sourceRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_source_retries_total",
				Help: "Local retries issued by the detail fetcher after transient errors.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		pacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_pacing_delay_seconds",
				Help:    "Time spent waiting for the inter-request delay.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSourceRequest records one remote request and its result label.
func ObserveSourceRequest(endpoint, result string, duration time.Duration) {
	Init()
	sourceRequestsTotal.WithLabelValues(endpoint, result).Inc()
	sourceRequestSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRetry counts one local detail retry.
func ObserveRetry() {
	Init()
	sourceRetriesTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePacingDelay records the duration of an inter-request wait.
func ObservePacingDelay(duration time.Duration) {
	Init()
	pacingDelaySeconds.Observe(duration.Seconds())
}
