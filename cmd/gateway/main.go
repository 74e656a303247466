package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-gateway/internal/cache"
	"github.com/kjstillabower/weather-gateway/internal/circuitbreaker"
	"github.com/kjstillabower/weather-gateway/internal/client"
	"github.com/kjstillabower/weather-gateway/internal/config"
	httphandler "github.com/kjstillabower/weather-gateway/internal/http"
	"github.com/kjstillabower/weather-gateway/internal/observability"
	"github.com/kjstillabower/weather-gateway/internal/ratelimit"
	"github.com/kjstillabower/weather-gateway/internal/service"
	"github.com/kjstillabower/weather-gateway/internal/token"
	"github.com/kjstillabower/weather-gateway/internal/traffic"
	"github.com/kjstillabower/weather-gateway/internal/users"
)

const inFlightCheckInterval = 100 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	store, err := users.Open(context.Background(), cfg.DatabasePath, cfg.DatabaseMaxConns, logger)
	if err != nil {
		logger.Fatal("credential store", zap.Error(err), zap.String("path", cfg.DatabasePath))
	}
	accounts := users.NewAccounts(store, cfg.BcryptCost)
	tokens := token.NewService(cfg.JWTSecret, cfg.JWTExpireMin)

	weatherClient, err := client.NewWeatherAPIClient(cfg.RapidAPIKey, cfg.WeatherAPIURL, cfg.RapidAPIHost, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			IsFailure:        client.IsBreakerFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.CircuitBreakerState.Set(float64(to))
				logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.WithCircuitBreaker(cb)
		observability.CircuitBreakerState.Set(0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	responseCache := cache.NewLRUCache(cfg.CacheCapacity)
	responseCache.OnEvict(func(string) { observability.CacheEvictionsTotal.Inc() })
	observability.RegisterCacheGauges(responseCache.Len, responseCache.Capacity())

	tracker := traffic.NewTracker(cfg.HealthWindow)
	weatherService := service.NewWeatherService(weatherClient, responseCache, tracker)

	limiter, err := ratelimit.New(ratelimit.Config{
		Strategy: cfg.RateLimitStrategy,
		Requests: cfg.RateLimitRequests,
		Window:   cfg.RateLimitWindow,
		MaxWait:  cfg.RateLimitMaxWait,
	})
	if err != nil {
		logger.Fatal("rate limiter", zap.Error(err))
	}
	observability.RegisterRateLimitGauges(
		func() int { return tracker.Count(traffic.Delayed, cfg.HealthWindow) },
		func() int { return tracker.Count(traffic.Denied, cfg.HealthWindow) },
	)
	logger.Info("rate limiter configured",
		zap.String("strategy", cfg.RateLimitStrategy),
		zap.Int("requests", cfg.RateLimitRequests),
		zap.Duration("window", cfg.RateLimitWindow),
		zap.Duration("max_wait", cfg.RateLimitMaxWait))

	handler := httphandler.NewHandler(httphandler.Deps{
		Weather:  weatherService,
		Accounts: accounts,
		Tokens:   tokens,
		Health: &httphandler.HealthConfig{
			Window:           cfg.HealthWindow,
			DegradedErrorPct: cfg.DegradedErrorPct,
			DatabasePing:     store.Ping,
		},
		Tracker: tracker,
		Logger:  logger,
	})
	inFlight := httphandler.NewInFlightTracker()
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		Tracker:        tracker,
		Verifier:       tokens,
		InFlight:       inFlight,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if err := store.Close(); err != nil {
		logger.Error("credential store close", zap.Error(err))
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
