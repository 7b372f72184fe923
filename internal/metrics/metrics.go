// Package metrics exposes Prometheus collectors for the digest pipeline.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds every QuantumBoom collector. A dedicated registry keeps
// Pushgateway payloads free of unrelated default collectors.
var Registry = prometheus.NewRegistry()

var (
	sourceItemsTotal           *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	summariesTotal             *prometheus.CounterVec
	completionDurationSeconds  *prometheus.HistogramVec
	completionAttemptsTotal    *prometheus.CounterVec
	publishTotal               *prometheus.CounterVec
	runDurationSeconds         *prometheus.HistogramVec
	lastSuccessTimestamp       prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; the Observe helpers call it
// so packages can record metrics without a startup hook.
func Init() {
	once.Do(func() {
		factory := promauto.With(Registry)

		sourceItemsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantumboom_source_items_total",
				Help: "Items produced by source adapters, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		fetchBytesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantumboom_fetch_bytes_total",
				Help: "Bytes downloaded by the source fetcher, labeled by site.",
			},
			[]string{"site"},
		)

		summariesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantumboom_summaries_total",
				Help: "Summarized items, labeled by section kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		completionDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantumboom_completion_duration_seconds",
				Help:    "Latency of completion API calls, labeled by provider.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		)

		completionAttemptsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantumboom_completion_attempts_total",
				Help: "Completion API attempts, labeled by provider and result category.",
			},
			[]string{"provider", "result"},
		)

		publishTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantumboom_publish_total",
				Help: "Deployment attempts, labeled by status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantumboom_run_duration_seconds",
				Help:    "Wall-clock duration of pipeline runs, labeled by final state.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"state"},
		)

		lastSuccessTimestamp = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "quantumboom_last_success_timestamp_seconds",
				Help: "Unix time of the last run that reached Done.",
			},
		)

		httpRequestsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of preview HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of preview HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the QuantumBoom registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Push sends the registry to a Prometheus Pushgateway.
func Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// ObserveSource records the outcome of one adapter.
func ObserveSource(source, status string, items int) {
	Init()
	sourceItemsTotal.WithLabelValues(source, status).Add(float64(items))
}

// ObserveFetch records bytes downloaded from a site.
func ObserveFetch(rawURL string, bytesFetched int) {
	Init()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(bytesFetched))
	}
}

// ObserveSummary increments the summary counter for one item.
func ObserveSummary(kind, outcome string) {
	Init()
	summariesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveCompletion records a single completion attempt.
func ObserveCompletion(provider, result string, duration time.Duration) {
	Init()
	completionAttemptsTotal.WithLabelValues(provider, result).Inc()
	completionDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObservePublish increments the publish counter.
func ObservePublish(status string) {
	Init()
	publishTotal.WithLabelValues(status).Inc()
}

// ObserveRun records the duration of a finished run.
func ObserveRun(state string, duration time.Duration, finished time.Time) {
	Init()
	runDurationSeconds.WithLabelValues(state).Observe(duration.Seconds())
	if state == "done" {
		lastSuccessTimestamp.Set(float64(finished.Unix()))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
