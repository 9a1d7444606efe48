// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvesterFetchesTotal           *prometheus.CounterVec
	harvesterFetchDurationSeconds   *prometheus.HistogramVec
	harvesterRecordsTotal           *prometheus.CounterVec
	harvesterDuplicatesTotal        *prometheus.CounterVec
	harvesterRoundsTotal            prometheus.Counter
	harvesterIdentityRotationsTotal *prometheus.CounterVec
	harvesterBackoffSeconds         *prometheus.HistogramVec
	harvesterRateLimitDelaySeconds  *prometheus.HistogramVec
	harvesterActiveSearches         prometheus.Gauge
	harvesterPublishErrorsTotal     *prometheus.CounterVec
	harvesterRunDurationSeconds     prometheus.Gauge
	httpRequestsTotal               *prometheus.CounterVec
	httpRequestDurationSeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times. Every observe helper is
// a no-op until Init runs, so packages can record metrics unconditionally.
func Init() {
	once.Do(func() {
		harvesterFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetches_total",
				Help: "Total number of fetch attempts, labeled by market and outcome.",
			},
			[]string{"market", "outcome"},
		)

		harvesterFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by market.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"market"},
		)

		harvesterRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Total number of unique records merged, labeled by market.",
			},
			[]string{"market"},
		)

		harvesterDuplicatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_duplicates_total",
				Help: "Total number of duplicate records discarded, labeled by market.",
			},
			[]string{"market"},
		)

		harvesterRoundsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_rounds_total",
				Help: "Total number of dispatch rounds executed.",
			},
		)

		harvesterIdentityRotationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_identity_rotations_total",
				Help: "Total number of identity rotations triggered by blocks, labeled by market.",
			},
			[]string{"market"},
		)

		harvesterBackoffSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_backoff_seconds",
				Help:    "Histogram of backoff wait durations between fetch attempts.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"market"},
		)

		harvesterRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Histogram of waits imposed by the per-market rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"market"},
		)

		harvesterActiveSearches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_searches",
				Help: "Number of market searches currently in flight.",
			},
		)

		harvesterPublishErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_publish_errors_total",
				Help: "Total number of records that failed to publish downstream, labeled by market.",
			},
			[]string{"market"},
		)

		harvesterRunDurationSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_run_duration_seconds",
				Help: "Wall clock duration of the most recent harvest run.",
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
	})
}

// SanitizeMarket normalizes a market name into a low-cardinality label.
// It returns "unknown" for empty input.
func SanitizeMarket(market string) string {
	market = strings.ToLower(strings.TrimSpace(market))
	if market == "" {
		return "unknown"
	}
	var b strings.Builder
	b.Grow(len(market))
	for _, r := range market {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records a terminal fetch attempt for a market.
func ObserveFetch(market, outcome string, duration time.Duration) {
	if harvesterFetchesTotal == nil {
		return
	}
	m := SanitizeMarket(market)
	harvesterFetchesTotal.WithLabelValues(m, outcome).Inc()
	harvesterFetchDurationSeconds.WithLabelValues(m).Observe(duration.Seconds())
}

// ObserveMerge records the outcome of merging a batch into the aggregate.
func ObserveMerge(market string, added, discarded int) {
	if harvesterRecordsTotal == nil {
		return
	}
	m := SanitizeMarket(market)
	if added > 0 {
		harvesterRecordsTotal.WithLabelValues(m).Add(float64(added))
	}
	if discarded > 0 {
		harvesterDuplicatesTotal.WithLabelValues(m).Add(float64(discarded))
	}
}

// ObserveRound increments the dispatch round counter.
func ObserveRound() {
	if harvesterRoundsTotal == nil {
		return
	}
	harvesterRoundsTotal.Inc()
}

// ObserveIdentityRotation increments the rotation counter for a market.
func ObserveIdentityRotation(market string) {
	if harvesterIdentityRotationsTotal == nil {
		return
	}
	harvesterIdentityRotationsTotal.WithLabelValues(SanitizeMarket(market)).Inc()
}

// ObserveBackoff records the duration of a backoff wait.
func ObserveBackoff(market string, duration time.Duration) {
	if harvesterBackoffSeconds == nil {
		return
	}
	harvesterBackoffSeconds.WithLabelValues(SanitizeMarket(market)).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(market string, duration time.Duration) {
	if harvesterRateLimitDelaySeconds == nil {
		return
	}
	harvesterRateLimitDelaySeconds.WithLabelValues(SanitizeMarket(market)).Observe(duration.Seconds())
}

// ObservePublishError increments the publish failure counter for a market.
func ObservePublishError(market string) {
	if harvesterPublishErrorsTotal == nil {
		return
	}
	harvesterPublishErrorsTotal.WithLabelValues(SanitizeMarket(market)).Inc()
}

// ObserveRunDuration records the wall clock duration of a finished run.
func ObserveRunDuration(duration time.Duration) {
	if harvesterRunDurationSeconds == nil {
		return
	}
	harvesterRunDurationSeconds.Set(duration.Seconds())
}

// IncActiveSearches increments the in-flight search gauge.
func IncActiveSearches() {
	if harvesterActiveSearches == nil {
		return
	}
	harvesterActiveSearches.Inc()
}

// DecActiveSearches decrements the in-flight search gauge.
func DecActiveSearches() {
	if harvesterActiveSearches == nil {
		return
	}
	harvesterActiveSearches.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
