// Package metrics exposes Prometheus collectors for the page bundler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the collectors.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	bundlerRunsTotal            *prometheus.CounterVec
	bundlerRunDurationSeconds   *prometheus.HistogramVec
	bundlerFetchesTotal         *prometheus.CounterVec
	bundlerBytesTotal           *prometheus.CounterVec
	bundlerImagesTotal          *prometheus.CounterVec
	bundlerArchiveBytesTotal    prometheus.Counter
	bundlerDeliveriesTotal      *prometheus.CounterVec
	bundlerSideEffectErrorTotal *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		bundlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_runs_total",
				Help: "Total pipeline runs, labeled by result.",
			},
			[]string{"result"},
		)

		bundlerRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bundler_run_duration_seconds",
				Help:    "Wall time per pipeline run, labeled by result.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"result"},
		)

		bundlerFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_fetches_total",
				Help: "Total outbound fetches, labeled by site, kind (page or image) and outcome.",
			},
			[]string{"site", "kind", "outcome"},
		)

		bundlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_bytes_total",
				Help: "Total bytes downloaded, labeled by kind.",
			},
			[]string{"kind"},
		)

		bundlerImagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_images_total",
				Help: "Total images processed by the localizer, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		bundlerArchiveBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bundler_archive_bytes_total",
				Help: "Total bytes written to image archives.",
			},
		)

		bundlerDeliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_deliveries_total",
				Help: "Total webhook property deliveries, labeled by property and outcome.",
			},
			[]string{"property", "outcome"},
		)

		bundlerSideEffectErrorTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_side_effect_errors_total",
				Help: "Best-effort steps (mirror, record, publish) that failed, labeled by step.",
			},
			[]string{"step"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records a finished pipeline run.
func ObserveRun(result string, duration time.Duration) {
	bundlerRunsTotal.WithLabelValues(result).Inc()
	bundlerRunDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveFetch records one page or image fetch.
func ObserveFetch(rawURL, kind string, ok bool, bytesFetched int) {
	bundlerFetchesTotal.WithLabelValues(SanitizeSite(rawURL), kind, outcome(ok)).Inc()
	if bytesFetched > 0 {
		bundlerBytesTotal.WithLabelValues(kind).Add(float64(bytesFetched))
	}
}

// ObserveImages records the outcome counts of a localize pass.
func ObserveImages(succeeded, failed int) {
	bundlerImagesTotal.WithLabelValues(OutcomeSuccess).Add(float64(succeeded))
	bundlerImagesTotal.WithLabelValues(OutcomeFailure).Add(float64(failed))
}

// ObserveArchive records the size of a written archive.
func ObserveArchive(size int64) {
	if size > 0 {
		bundlerArchiveBytesTotal.Add(float64(size))
	}
}

// ObserveDelivery records one webhook property POST.
func ObserveDelivery(property string, ok bool) {
	bundlerDeliveriesTotal.WithLabelValues(property, outcome(ok)).Inc()
}

// ObserveSideEffectError counts a failed best-effort step.
func ObserveSideEffectError(step string) {
	bundlerSideEffectErrorTotal.WithLabelValues(step).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
