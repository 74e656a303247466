package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across client, http, service, and ratelimit packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/api/weather", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/api/weather").Observe(0.01)
	WeatherAPICallsTotal.WithLabelValues("success").Inc()
	WeatherAPICallsTotal.WithLabelValues("circuit_open").Inc()
	WeatherAPIDuration.WithLabelValues("success").Observe(0.1)
	WeatherAPIErrorsTotal.WithLabelValues("forbidden").Inc()
	CacheLookupsTotal.WithLabelValues("hit").Inc()
	CacheLookupsTotal.WithLabelValues("miss").Inc()
	CacheEvictionsTotal.Inc()
	CoalescedRequestsTotal.Inc()
	RateLimitDecisionsTotal.WithLabelValues("delayed").Inc()
	RateLimitWaitSeconds.Observe(1.5)
	AuthFailuresTotal.Inc()
	AccountOperationsTotal.WithLabelValues("login", "success").Inc()
	CircuitBreakerState.Set(0)
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format including the registered gauges.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	RegisterCacheGauges(func() int { return 7 }, 100)
	RegisterRateLimitGauges(func() int { return 3 }, func() int { return 1 })

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"httpRequestsTotal", "cacheEntries 7", "cacheCapacity 100", "rateLimitDelayedInWindow 3", "rateLimitRejectsInWindow 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("MetricsHandler response missing %q", want)
		}
	}
}
