// Package metrics holds the Prometheus collectors of the API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache Metrics
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_cache_hits_total",
		Help: "Lookups answered from the upstream response cache.",
	}, []string{"cache"})
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_cache_misses_total",
		Help: "Lookups that required an upstream fetch.",
	}, []string{"cache"})
	CacheFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_cache_fetch_errors_total",
		Help: "Upstream fetches that failed and were not cached.",
	}, []string{"cache"})
	CacheShared = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_cache_shared_fetches_total",
		Help: "Callers that joined an in-flight fetch instead of issuing their own.",
	}, []string{"cache"})
	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_cache_evictions_total",
		Help: "Expired entries removed by the sweeper.",
	}, []string{"cache"})
	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "upstream_cache_entries",
		Help: "Entries held by the cache after the last sweep, expired ones included.",
	}, []string{"cache"})

	// Token Metrics
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "token_refreshes_total",
		Help: "Refresh exchanges against the OAuth token endpoint.",
	}, []string{"outcome"})
	AuthRequired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_required_total",
		Help: "Requests short-circuited because the session needs a new sign-in.",
	})

	// Upstream Metrics
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Requests issued to upstream APIs.",
	}, []string{"endpoint", "status"})
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_request_duration_seconds",
		Help:    "Latency of upstream API requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
