package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request, including time held by the rate limiter.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, held requests piling up.
	HTTPRequestsInFlight prometheus.Gauge

	// WeatherAPI call outcomes by status label. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Failed weather lookups by error kind as returned to the caller.
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Response cache lookups by result (hit|miss). Hit rate = hit/(hit+miss).
	CacheLookupsTotal *prometheus.CounterVec

	// Entries dropped to respect cache capacity. Watch for: churn when capacity is too small.
	CacheEvictionsTotal prometheus.Counter

	// Cache misses that joined an in-flight upstream call instead of starting one.
	CoalescedRequestsTotal prometheus.Counter

	// Rate limiter admissions by decision (allowed|delayed|rejected).
	RateLimitDecisionsTotal *prometheus.CounterVec

	// Time requests spent held by the rate limiter.
	RateLimitWaitSeconds prometheus.Histogram

	// Requests refused by the auth gate (401).
	AuthFailuresTotal prometheus.Counter

	// Register/login outcomes.
	AccountOperationsTotal *prometheus.CounterVec

	// Upstream circuit breaker state: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState prometheus.Gauge

	cacheGaugesOnce     sync.Once
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
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of WeatherAPI calls by outcome",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "WeatherAPI latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Failed weather lookups by error kind",
		},
		[]string{"kind"},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Response cache lookups by result",
		},
		[]string{"result"},
	)
	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheEvictionsTotal",
			Help: "Total number of response cache evictions",
		},
	)
	CoalescedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescedRequestsTotal",
			Help: "Cache misses served by an upstream call already in flight",
		},
	)
	RateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rateLimitDecisionsTotal",
			Help: "Rate limiter admissions by decision",
		},
		[]string{"decision"},
	)
	RateLimitWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rateLimitWaitSeconds",
			Help:    "Time requests were held by the rate limiter",
			Buckets: []float64{.01, .1, .5, 1, 5, 15, 30, 60},
		},
	)
	AuthFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authFailuresTotal",
			Help: "Requests rejected by the auth gate",
		},
	)
	AccountOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountOperationsTotal",
			Help: "Register and login outcomes",
		},
		[]string{"operation", "outcome"},
	)
	CircuitBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "WeatherAPI circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		CacheLookupsTotal, CacheEvictionsTotal, CoalescedRequestsTotal,
		RateLimitDecisionsTotal, RateLimitWaitSeconds,
		AuthFailuresTotal, AccountOperationsTotal,
		CircuitBreakerState,
	)
}

// RegisterCacheGauges exposes the response cache size. Call once from main after building the cache.
func RegisterCacheGauges(entries func() int, capacity int) {
	cacheGaugesOnce.Do(func() {
		capacityGauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cacheCapacity",
			Help: "Configured response cache capacity",
		})
		capacityGauge.Set(float64(capacity))
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "cacheEntries",
					Help: "Current number of response cache entries",
				},
				func() float64 { return float64(entries()) },
			),
			capacityGauge,
		)
	})
}

// RegisterRateLimitGauges registers held and rejected gauges over the health window.
// Call from main after config load; the counters come from the traffic tracker.
func RegisterRateLimitGauges(delayed, rejected func() int) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitDelayedInWindow",
					Help: "Requests held by the rate limiter in the health window",
				},
				func() float64 { return float64(delayed()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the health window",
				},
				func() float64 { return float64(rejected()) },
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
