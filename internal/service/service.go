package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-gateway/internal/cache"
	"github.com/kjstillabower/weather-gateway/internal/client"
	"github.com/kjstillabower/weather-gateway/internal/models"
	"github.com/kjstillabower/weather-gateway/internal/observability"
	"github.com/kjstillabower/weather-gateway/internal/traffic"
)

// WeatherService serves weather lookups cache-aside: the response cache first, the upstream
// on a miss. Only successful upstream results are cached.
type WeatherService struct {
	client    client.WeatherClient
	cache     cache.Cache
	tracker   *traffic.Tracker
	coalescer *requestCoalescer
}

// NewWeatherService creates a new WeatherService. tracker may be nil.
func NewWeatherService(client client.WeatherClient, cache cache.Cache, tracker *traffic.Tracker) *WeatherService {
	return &WeatherService{
		client:    client,
		cache:     cache,
		tracker:   tracker,
		coalescer: newRequestCoalescer(),
	}
}

// GetWeather returns current conditions for the client at ip.
// Errors keep the client taxonomy; use client.KindOf to classify them.
func (s *WeatherService) GetWeather(ctx context.Context, ip string) (models.Weather, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	cached, ok, err := s.cache.Get(ctx, ip)
	if err != nil {
		logger.Warn("cache get failed", zap.Error(err))
	} else if ok {
		observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
		logger.Debug("weather served", zap.String("ip", ip), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return cached, nil
	}
	observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
	logger.Debug("cache miss, fetching upstream", zap.String("ip", ip))

	data, shared, err := s.coalescer.Do(ctx, ip, func(ctx context.Context) (models.Weather, error) {
		return s.fetchAndStore(ctx, ip)
	})
	if shared {
		observability.CoalescedRequestsTotal.Inc()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) && client.KindOf(err) == client.KindUnknown {
			// The caller's deadline or disconnect ended the lookup: a transport failure.
			return models.Weather{}, fmt.Errorf("fetch weather for %s: %w: %w", ip, client.ErrHTTPRequest, ctxErr)
		}
		return models.Weather{}, fmt.Errorf("fetch weather for %s: %w", ip, err)
	}

	logger.Debug("weather served", zap.String("ip", ip), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return data, nil
}

// fetchAndStore runs once per coalesced lookup. The result is cached only when the call
// succeeded and someone is still waiting for it.
func (s *WeatherService) fetchAndStore(ctx context.Context, ip string) (models.Weather, error) {
	data, err := s.client.FetchWeather(ctx, ip)
	if ctx.Err() != nil {
		if err == nil {
			err = ctx.Err()
		}
		return models.Weather{}, err
	}
	s.recordOutcome(err)
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(client.KindOf(err).String()).Inc()
		return models.Weather{}, err
	}

	if setErr := s.cache.Set(ctx, ip, data); setErr != nil {
		observability.LoggerFromContext(ctx).Warn("cache set failed", zap.String("ip", ip), zap.Error(setErr))
	}
	return data, nil
}

// recordOutcome feeds the health error rate. Rejections of the request itself (400) are not
// upstream failures.
func (s *WeatherService) recordOutcome(err error) {
	if s.tracker == nil {
		return
	}
	switch client.KindOf(err) {
	case client.KindNone, client.KindBadRequest, client.KindIPExtraction:
		s.tracker.RecordSuccess()
	case client.KindForbidden, client.KindUnknown, client.KindHTTPRequest:
		s.tracker.RecordError()
	}
}
