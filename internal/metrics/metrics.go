// Package metrics exposes Prometheus collectors for the discovery pipeline.
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

var (
	listingPagesTotal          *prometheus.CounterVec
	listingFetchFailuresTotal  *prometheus.CounterVec
	candidatesTotal            *prometheus.CounterVec
	detailFetchesTotal         *prometheus.CounterVec
	detailFetchBytesTotal      *prometheus.CounterVec
	newGrantsTotal             *prometheus.CounterVec
	ingestedGrantsTotal        *prometheus.CounterVec
	grantFailuresTotal         *prometheus.CounterVec
	syncRunsTotal              *prometheus.CounterVec
	syncRunDurationSeconds     *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_listing_pages_total",
				Help: "Listing pages fetched, labeled by status filter.",
			},
			[]string{"filter"},
		)

		listingFetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_listing_fetch_failures_total",
				Help: "Listing page fetches that ended a filter's pagination.",
			},
			[]string{"filter"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_candidates_total",
				Help: "Detail URLs accepted by the crawler, labeled by status filter.",
			},
			[]string{"filter"},
		)

		detailFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_page_fetches_total",
				Help: "Page fetches, labeled by site and HTTP status.",
			},
			[]string{"site", "status"},
		)

		detailFetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_page_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		newGrantsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_new_total",
				Help: "Candidates absent from the store, labeled by source.",
			},
			[]string{"source"},
		)

		ingestedGrantsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_ingested_total",
				Help: "Grants embedded, stored and indexed, labeled by source.",
			},
			[]string{"source"},
		)

		grantFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_failures_total",
				Help: "Per-grant failures, labeled by pipeline stage.",
			},
			[]string{"stage"},
		)

		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_sync_runs_total",
				Help: "Discovery runs, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		syncRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grant_sync_run_duration_seconds",
				Help:    "Histogram of discovery run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"source"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grant_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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
	Init()
	return promhttp.Handler()
}

// ObserveListingPage counts a listing page fetch. A non-nil err counts as a
// fetch failure for the filter.
func ObserveListingPage(filter string, err error) {
	Init()
	if err != nil {
		listingFetchFailuresTotal.WithLabelValues(filter).Inc()
		return
	}
	listingPagesTotal.WithLabelValues(filter).Inc()
}

// ObserveCandidate counts a detail URL accepted under filter.
func ObserveCandidate(filter string) {
	Init()
	candidatesTotal.WithLabelValues(filter).Inc()
}

// ObserveFetch counts a page fetch and the bytes it returned.
func ObserveFetch(site string, status int, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	detailFetchesTotal.WithLabelValues(sanitizedSite, strconv.Itoa(status)).Inc()
	if bytesFetched > 0 {
		detailFetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveNew adds n newly discovered grants for source.
func ObserveNew(source string, n int) {
	Init()
	if n > 0 {
		newGrantsTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveIngest counts one grant that completed ingestion.
func ObserveIngest(source string) {
	Init()
	ingestedGrantsTotal.WithLabelValues(source).Inc()
}

// ObserveFailure counts one per-grant failure at stage.
func ObserveFailure(stage string) {
	Init()
	grantFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveRun records a completed discovery run.
func ObserveRun(source, outcome string, duration time.Duration) {
	Init()
	syncRunsTotal.WithLabelValues(source, outcome).Inc()
	syncRunDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
