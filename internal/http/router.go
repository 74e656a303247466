package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-gateway/internal/observability"
	"github.com/kjstillabower/weather-gateway/internal/ratelimit"
	"github.com/kjstillabower/weather-gateway/internal/traffic"
)

// RouterConfig is the shared state the request pipeline is built around.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        ratelimit.Limiter
	Tracker        *traffic.Tracker
	Verifier       TokenVerifier
	InFlight       *InFlightTracker
	RequestTimeout time.Duration
}

// NewRouter wires the middleware pipeline and routes.
//
// Every matched request passes correlation, recovery, metrics and in-flight tracking. Requests
// under /api are then rate limited, authenticated where protected, and given a deadline.
// /health and /metrics are neither limited nor authenticated.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(RecoveryMiddleware)
	router.Use(MetricsMiddleware)
	if cfg.InFlight != nil {
		router.Use(cfg.InFlight.Middleware)
	}
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter, cfg.Tracker))
	api.Use(AuthMiddleware(cfg.Verifier, ProtectedRoutes))
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	return router
}
