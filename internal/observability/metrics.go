package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/climate-outlook-service/internal/models"
	"github.com/kjstillabower/climate-outlook-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Provider call rate per endpoint (forecast/archive). Watch for: error vs success ratio.
	ProviderCallsTotal *prometheus.CounterVec

	// Provider latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	ProviderCallDuration *prometheus.HistogramVec

	// Retry attempts for provider calls. Watch for: high retries = unstable upstream.
	ProviderRetriesTotal prometheus.Counter

	// Provider errors by category. Watch for: category shifts (parsing vs 5xx).
	ProviderErrorsTotal *prometheus.CounterVec

	// Outlook cache hits by backend type.
	CacheHitsTotal *prometheus.CounterVec

	// Cache operation failures by operation and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache operation latency by operation and outcome.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Total outlook computations (cache misses that went through the pipeline).
	OutlooksComputedTotal prometheus.Counter

	// Risk labels emitted, by category and level. Watch for: climate of requests, rule drift after threshold changes.
	RiskLabelsTotal *prometheus.CounterVec

	// Outlooks that needed the small-sample confidence fallback.
	OutlookExtrapolationsTotal prometheus.Counter

	// Concurrent cache-miss stampedes detected per key.
	CacheStampedeDetectedTotal prometheus.Counter

	// Concurrency observed during a stampede.
	CacheStampedeConcurrency prometheus.Histogram

	// Requests that piggybacked on an in-flight identical computation.
	RequestCoalescingHitsTotal prometheus.Counter

	// Time spent waiting on a coalesced computation.
	RequestCoalescingWaitSeconds prometheus.Histogram

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component (0 closed, 1 open, 2 half-open).
	circuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions per component.
	circuitBreakerTransitions *prometheus.CounterVec

	// In-flight requests remaining when shutdown wait gave up.
	shutdownInFlight prometheus.Gauge

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerCallsTotal",
			Help: "Total number of weather data provider calls",
		},
		[]string{"endpoint", "status"},
	)
	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providerCallDurationSeconds",
			Help:    "Weather data provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	ProviderRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "providerRetriesTotal",
			Help: "Total number of retry attempts for provider calls",
		},
	)
	ProviderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerErrorsTotal",
			Help: "Provider errors by category",
		},
		[]string{"category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of outlook cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache operation failures by operation and error category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "status"},
	)
	OutlooksComputedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outlooksComputedTotal",
			Help: "Total number of outlooks computed through the full pipeline",
		},
	)
	RiskLabelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskLabelsTotal",
			Help: "Risk labels emitted by category and level",
		},
		[]string{"riskType", "level"},
	)
	OutlookExtrapolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outlookExtrapolationsTotal",
			Help: "Outlooks that fell back to assumed confidence due to small samples",
		},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Concurrent cache misses for the same outlook key",
		},
	)
	CacheStampedeConcurrency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent miss count observed during a stampede",
			Buckets: []float64{2, 3, 5, 10, 25, 50},
		},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests served by piggybacking on an in-flight identical computation",
		},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time spent waiting on a coalesced computation",
			Buckets: prometheus.DefBuckets,
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	circuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	shutdownInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "In-flight requests observed when graceful shutdown began",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ProviderCallsTotal, ProviderCallDuration, ProviderRetriesTotal, ProviderErrorsTotal,
		CacheHitsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		OutlooksComputedTotal, RiskLabelsTotal, OutlookExtrapolationsTotal,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		RequestCoalescingHitsTotal, RequestCoalescingWaitSeconds,
		RateLimitDeniedTotal,
		circuitBreakerState, circuitBreakerTransitions, shutdownInFlight,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load. Uses the same window as the health handler.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// RecordRiskLabels bumps the per-category level counters for one response.
func RecordRiskLabels(labels []models.RiskLabel) {
	for _, l := range labels {
		RiskLabelsTotal.WithLabelValues(string(l.RiskType), string(l.Level)).Inc()
	}
}

// RecordCircuitBreakerTransition records a breaker state change for metrics.
func RecordCircuitBreakerTransition(component, from, to string) {
	circuitBreakerTransitions.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge sets the breaker state gauge for a component.
func SetCircuitBreakerStateGauge(component string, state float64) {
	circuitBreakerState.WithLabelValues(component).Set(state)
}

// RecordShutdownInFlight records how many requests were still in flight
// when graceful shutdown began.
func RecordShutdownInFlight(n int64) {
	shutdownInFlight.Set(float64(n))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
