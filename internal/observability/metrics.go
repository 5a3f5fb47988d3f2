// Package observability provides Prometheus metrics for the sniper.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be constructed without one in tests.
type Metrics struct {
	registry *prometheus.Registry

	// Trading
	TradesTotal      *prometheus.CounterVec
	TradeLatency     *prometheus.HistogramVec
	SubmissionsTotal prometheus.Counter
	SessionsTotal    *prometheus.CounterVec
	LamportsSpent    prometheus.Counter

	// Quote service
	QuotesTotal    *prometheus.CounterVec
	QuoteCacheHits prometheus.Counter

	// Rate limiting
	RateLimitWait *prometheus.HistogramVec

	// Wallet pool
	PoolAvailableLamports prometheus.Gauge
	PoolEligibleWallets   prometheus.Gauge
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sniper"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_total",
			Help:      "Trade attempts by outcome kind",
		}, []string{"kind"}),
		TradeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trade_latency_seconds",
			Help:      "Wall-clock latency from quote start to resolution",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"success"}),
		SubmissionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "submissions_total",
			Help:      "Signed transactions sent to the ledger",
		}),
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "sessions_total",
			Help:      "Trading sessions by outcome",
		}, []string{"outcome"}),
		LamportsSpent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "lamports_spent_total",
			Help:      "Lamports spent by successful trades",
		}),

		QuotesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jupiter",
			Name:      "requests_total",
			Help:      "Swap API requests by tier, operation and result",
		}, []string{"tier", "operation", "result"}),
		QuoteCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jupiter",
			Name:      "quote_cache_hits_total",
			Help:      "Quotes served from cache",
		}),

		RateLimitWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a rate limiter token",
			Buckets:   []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"service"}),

		PoolAvailableLamports: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallets",
			Name:      "available_lamports",
			Help:      "Sum of available balance across the pool",
		}),
		PoolEligibleWallets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallets",
			Name:      "eligible",
			Help:      "Wallets above the minimum balance and below the trade cap",
		}),
	}
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordTrade records one resolved trade attempt.
func (m *Metrics) RecordTrade(kind string, success bool, latency time.Duration, spent uint64) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(kind).Inc()
	label := "false"
	if success {
		label = "true"
		m.LamportsSpent.Add(float64(spent))
	}
	m.TradeLatency.WithLabelValues(label).Observe(latency.Seconds())
}

// RecordSubmission counts one sendTransaction.
func (m *Metrics) RecordSubmission() {
	if m == nil {
		return
	}
	m.SubmissionsTotal.Inc()
}

// RecordSession records a finished session.
func (m *Metrics) RecordSession(outcome string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}

// RecordQuoteRequest records one swap API request.
func (m *Metrics) RecordQuoteRequest(tier, operation, result string) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(tier, operation, result).Inc()
}

// RecordQuoteCacheHit counts a cached quote.
func (m *Metrics) RecordQuoteCacheHit() {
	if m == nil {
		return
	}
	m.QuoteCacheHits.Inc()
}

// RecordRateLimitWait records how long a caller waited for a token. Its
// signature matches ratelimit.WaitObserver.
func (m *Metrics) RecordRateLimitWait(service string, wait time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.WithLabelValues(service).Observe(wait.Seconds())
}

// UpdatePool sets the pool gauges.
func (m *Metrics) UpdatePool(availableLamports uint64, eligible int) {
	if m == nil {
		return
	}
	m.PoolAvailableLamports.Set(float64(availableLamports))
	m.PoolEligibleWallets.Set(float64(eligible))
}
