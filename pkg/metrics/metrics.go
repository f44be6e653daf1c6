// Package metrics holds the Prometheus registry, the gateway-level metric
// catalogue and the /metrics handler. Component metrics live next to the
// code that records them (client, cache, quota) and register themselves
// via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every gateway metric is attached to.
var Registry = prometheus.DefaultRegisterer

var (
	// GatewayRequests counts gateway operations by result
	// (ok, cached, quota_exceeded, invalid, no_matches, upstream_error, unavailable, cancelled).
	GatewayRequests = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "football_gateway_requests_total",
		Help: "Gateway operations by operation and result",
	}, []string{"operation", "result"})

	// GatewayDuration tracks end-to-end gateway operation latency.
	GatewayDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "football_gateway_request_duration_seconds",
		Help:    "Gateway operation duration including cache and retries",
		Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"operation"})

	// WarmupJobs counts cache warmup jobs by result (ok, failed).
	WarmupJobs = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "football_warmup_jobs_total",
		Help: "Cache warmup jobs by result",
	}, []string{"result"})

	// HTTPRequests counts inbound API requests by route and status code.
	HTTPRequests = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "football_http_requests_total",
		Help: "Inbound HTTP requests by route and status",
	}, []string{"route", "status"})

	// FavoritesTotal reports the number of stored favorites after the last write.
	FavoritesTotal = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "football_favorites",
		Help: "Number of stored favorite teams",
	})
)

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics reference
//
// Upstream (pkg/client):
//   - football_upstream_attempts_total{endpoint, outcome} (Counter)
//   - football_upstream_attempt_duration_seconds{endpoint} (Histogram)
//   - football_upstream_retries_total{outcome} (Counter)
//   - football_upstream_backoff_seconds (Histogram)
//   - football_upstream_retry_exhausted_total{outcome} (Counter)
//
// Cache (pkg/cache):
//   - football_cache_hits_total{layer} (Counter)
//   - football_cache_misses_total{layer} (Counter)
//   - football_cache_coalesced_total (Counter)
//   - football_cache_entry_size_bytes{layer} (Gauge)
//   - football_cache_errors_total{operation} (Counter)
//
// Quota (pkg/quota):
//   - football_quota_decisions_total{window, result} (Counter)
//   - football_quota_tracked_callers (Gauge)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(football_cache_hits_total[5m])) /
//   (sum(rate(football_cache_hits_total[5m])) + sum(rate(football_cache_misses_total[5m])))
//
//   # Upstream throttling
//   rate(football_upstream_attempts_total{outcome="rate_limited"}[5m])
//
//   # Callers hitting their quota
//   rate(football_quota_decisions_total{result="denied"}[5m])
//
//   # P95 Gateway Latency
//   histogram_quantile(0.95, rate(football_gateway_request_duration_seconds_bucket[5m]))
