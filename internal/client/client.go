package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-gateway/internal/circuitbreaker"
	"github.com/kjstillabower/weather-gateway/internal/models"
	"github.com/kjstillabower/weather-gateway/internal/observability"
)

// WeatherClient looks up current conditions for a client IP.
type WeatherClient interface {
	FetchWeather(ctx context.Context, ip string) (models.Weather, error)
}

var (
	ErrMissingAPIKey = errors.New("missing API key")
	ErrIPExtraction  = errors.New("failed to extract IP address")
	ErrHTTPRequest   = errors.New("weather API request failed")
	ErrBadRequest    = errors.New("bad request to weather API")
	ErrForbidden     = errors.New("access to the weather API is forbidden")
	ErrUnknown       = errors.New("unknown weather API error")
)

// WeatherAPIClient calls the RapidAPI-hosted WeatherAPI current conditions endpoint.
// Each lookup is a single attempt; failures are reported, never retried.
type WeatherAPIClient struct {
	apiKey  string
	apiURL  string
	apiHost string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

func NewWeatherAPIClient(apiKey, apiURL, apiHost string, timeout time.Duration) (*WeatherAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: RapidAPI key is required", ErrMissingAPIKey)
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid weather API URL: %w", err)
	}

	return &WeatherAPIClient{
		apiKey:  apiKey,
		apiURL:  strings.TrimRight(apiURL, "/"),
		apiHost: apiHost,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// WithCircuitBreaker routes lookups through cb. Only internal-class failures count against it.
func (c *WeatherAPIClient) WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) *WeatherAPIClient {
	c.breaker = cb
	return c
}

// IsBreakerFailure reports whether err says something about upstream health rather than the request.
func IsBreakerFailure(err error) bool {
	switch KindOf(err) {
	case KindHTTPRequest, KindUnknown:
		return true
	default:
		return false
	}
}

type weatherAPIResponse struct {
	Location struct {
		Name      string `json:"name"`
		Country   string `json:"country"`
		Localtime string `json:"localtime"`
	} `json:"location"`
	Current struct {
		TempC    float64 `json:"temp_c"`
		WindKph  float64 `json:"wind_kph"`
		WindDir  string  `json:"wind_dir"`
		Humidity int64   `json:"humidity"`
	} `json:"current"`
}

// FetchWeather returns current conditions for ip. See KindOf for the error taxonomy.
func (c *WeatherAPIClient) FetchWeather(ctx context.Context, ip string) (models.Weather, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, ip)
	}

	var result models.Weather
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		result, callErr = c.callAPI(ctx, ip)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.WeatherAPICallsTotal.WithLabelValues("circuit_open").Inc()
		return models.Weather{}, fmt.Errorf("%w: %w", ErrUnknown, err)
	}
	return result, err
}

func (c *WeatherAPIClient) callAPI(ctx context.Context, ip string) (models.Weather, error) {
	logger := observability.LoggerFromContext(ctx)
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, ip)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.Weather{}, fmt.Errorf("%w: build request: %w", ErrHTTPRequest, err)
	}

	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		logger.Error("weather API request failed", zap.Error(err))
		return models.Weather{}, fmt.Errorf("%w: %w", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	switch resp.StatusCode {
	case http.StatusOK:
		var apiResp weatherAPIResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			logger.Error("failed to decode weather API response", zap.Error(err))
			return models.Weather{}, fmt.Errorf("%w: parse response: %w", ErrHTTPRequest, err)
		}
		logger.Info("weather API request succeeded", zap.Int("status", resp.StatusCode))
		return mapResponse(apiResp), nil
	case http.StatusBadRequest:
		logger.Warn("weather API rejected request", zap.Int("status", resp.StatusCode))
		return models.Weather{}, ErrBadRequest
	case http.StatusForbidden:
		logger.Warn("weather API access forbidden", zap.Int("status", resp.StatusCode))
		return models.Weather{}, ErrForbidden
	default:
		logger.Error("weather API returned unexpected status", zap.Int("status", resp.StatusCode))
		return models.Weather{}, fmt.Errorf("%w: HTTP %d", ErrUnknown, resp.StatusCode)
	}
}

func (c *WeatherAPIClient) buildRequest(ctx context.Context, ip string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	endpoint := baseURL.JoinPath("current.json")

	params := url.Values{}
	params.Set("q", ip)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.apiHost)
	return req, nil
}

func mapResponse(apiResp weatherAPIResponse) models.Weather {
	return models.Weather{
		Location: models.Location{
			Name:      apiResp.Location.Name,
			Country:   apiResp.Location.Country,
			Localtime: apiResp.Location.Localtime,
		},
		Current: models.Current{
			TempC:    apiResp.Current.TempC,
			WindKph:  apiResp.Current.WindKph,
			WindDir:  apiResp.Current.WindDir,
			Humidity: apiResp.Current.Humidity,
		},
	}
}

// ExtractIP returns the host part of a remote address such as "203.0.113.7:5123",
// "[2001:db8::1]:443" or "tcp://203.0.113.7:5123".
func ExtractIP(addr string) (string, error) {
	hostPort := addr
	if i := strings.Index(hostPort, "://"); i >= 0 {
		hostPort = hostPort[i+3:]
	}
	host, _, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrIPExtraction, addr, err)
	}
	if host == "" {
		return "", fmt.Errorf("%w: %q: empty host", ErrIPExtraction, addr)
	}
	return host, nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode == http.StatusOK:
		return "success"
	case statusCode == http.StatusBadRequest:
		return "bad_request"
	case statusCode == http.StatusForbidden:
		return "forbidden"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}
