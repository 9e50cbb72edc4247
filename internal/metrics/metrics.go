// Package metrics registers the Prometheus instruments for the federation
// core. Instance-based (no package-level registration) so tests can use a
// throwaway registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instruments shared by the trust cache and HTTP layer.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Trust cache instruments.
	IssuerCacheHits      prometheus.Counter
	IssuerCacheLoads     *prometheus.CounterVec // result: ok|error
	IssuerCacheRefreshes *prometheus.CounterVec // result: ok|error
	IssuerCacheEvictions prometheus.Counter

	AllowlistResolves *prometheus.CounterVec // result: ok|error
}

// New builds and registers all instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())

	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		IssuerCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "issuer_cache_hits_total",
			Help: "Issuer validator cache hits (fresh or stale-but-served)",
		}),
		IssuerCacheLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issuer_cache_loads_total",
			Help: "Synchronous issuer validator loads by result",
		}, []string{"result"}),
		IssuerCacheRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issuer_cache_refreshes_total",
			Help: "Background refresh-ahead reloads by result",
		}, []string{"result"}),
		IssuerCacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "issuer_cache_evictions_total",
			Help: "Issuer cache entries evicted by the size bound",
		}),
		AllowlistResolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issuer_allowlist_resolves_total",
			Help: "Underlying tenant lookups for the issuer allowlist by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.IssuerCacheHits,
		m.IssuerCacheLoads,
		m.IssuerCacheRefreshes,
		m.IssuerCacheEvictions,
		m.AllowlistResolves,
	)
	return m
}

// Handler exposes the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
