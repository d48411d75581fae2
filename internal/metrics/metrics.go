// Package metrics exposes Prometheus collectors for the menu proxy.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	remoteFetchTotal           *prometheus.CounterVec
	storeResolutionsTotal      *prometheus.CounterVec
	sitemapRegenerationsTotal  *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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

		remoteFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "janemenu_remote_fetch_total",
				Help: "Total number of outbound fetches, labeled by target host and outcome.",
			},
			[]string{"target", "outcome"},
		)

		storeResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "janemenu_store_resolutions_total",
				Help: "Total number of storefront resolutions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		sitemapRegenerationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "janemenu_sitemap_regenerations_total",
				Help: "Total number of sitemap index regenerations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "janemenu_rate_limit_delay_seconds",
				Help:    "Time outbound fetches spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"target"},
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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRemoteFetch counts an outbound fetch. outcome is the status code or
// "unavailable".
func ObserveRemoteFetch(target, outcome string) {
	Init()
	remoteFetchTotal.WithLabelValues(SanitizeSite(target), outcome).Inc()
}

// ObserveResolution counts a storefront resolution outcome
// (unmatched, rendered, degraded).
func ObserveResolution(outcome string) {
	Init()
	storeResolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSitemapRegeneration counts a sitemap regeneration outcome.
func ObserveSitemapRegeneration(outcome string) {
	Init()
	sitemapRegenerationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records how long a fetch to host waited for a token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(host)).Observe(delay.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			routePattern = rctx.RoutePattern()
		}
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
