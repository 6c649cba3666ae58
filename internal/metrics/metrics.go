// Package metrics bundles the Prometheus collectors for the checker
// service. All methods are nil-safe so callers can run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	PoolBusy       prometheus.Gauge
	PoolAvailable  prometheus.Gauge
	PoolQueueDepth prometheus.Gauge
	AcquireWait    prometheus.Histogram

	ChecksTotal      *prometheus.CounterVec
	RetriesTotal     prometheus.Counter
	ExtractionsTotal *prometheus.CounterVec
	TunnelFallbacks  prometheus.Counter
}

// New constructs and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	poolBusy := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "checker_pool_busy_instances",
		Help: "Browser pool instances currently checked out.",
	})
	poolAvailable := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "checker_pool_available_instances",
		Help: "Browser pool instances currently idle.",
	})
	poolQueue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "checker_pool_queue_depth",
		Help: "Acquire requests waiting for a free browser instance.",
	})
	acquireWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checker_pool_acquire_wait_seconds",
		Help:    "Time spent waiting for a browser instance.",
		Buckets: prometheus.DefBuckets,
	})
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checker_checks_total",
		Help: "Product checks by outcome.",
	}, []string{"outcome"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checker_retries_total",
		Help: "Retry attempts scheduled by the orchestrator.",
	})
	extractions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checker_extractions_total",
		Help: "Completed extractions by method.",
	}, []string{"method"})
	tunnelFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checker_proxy_tunnel_fallbacks_total",
		Help: "Proxy tunnel failures recovered via direct navigation.",
	})

	registry.MustRegister(poolBusy, poolAvailable, poolQueue, acquireWait,
		checks, retries, extractions, tunnelFallbacks)

	return &Metrics{
		Registry:         registry,
		PoolBusy:         poolBusy,
		PoolAvailable:    poolAvailable,
		PoolQueueDepth:   poolQueue,
		AcquireWait:      acquireWait,
		ChecksTotal:      checks,
		RetriesTotal:     retries,
		ExtractionsTotal: extractions,
		TunnelFallbacks:  tunnelFallbacks,
	}
}

// SetPoolStats publishes current pool occupancy.
func (m *Metrics) SetPoolStats(busy, available, waiting int) {
	if m == nil {
		return
	}
	m.PoolBusy.Set(float64(busy))
	m.PoolAvailable.Set(float64(available))
	m.PoolQueueDepth.Set(float64(waiting))
}

// ObserveAcquireWait records how long an acquire waited for capacity.
func (m *Metrics) ObserveAcquireWait(d time.Duration) {
	if m == nil {
		return
	}
	m.AcquireWait.Observe(d.Seconds())
}

// IncCheck counts one finished check by outcome label.
func (m *Metrics) IncCheck(outcome string) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(outcome).Inc()
}

// IncRetry counts one scheduled retry.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncExtraction counts one completed extraction by method.
func (m *Metrics) IncExtraction(method string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(method).Inc()
}

// IncTunnelFallback counts one proxy-to-direct fallback.
func (m *Metrics) IncTunnelFallback() {
	if m == nil {
		return
	}
	m.TunnelFallbacks.Inc()
}
