//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-gateway/internal/cache"
	"github.com/kjstillabower/weather-gateway/internal/client"
	"github.com/kjstillabower/weather-gateway/internal/service"
	"github.com/kjstillabower/weather-gateway/internal/traffic"
)

// IntegrationTestConfig holds configuration for tests against the live WeatherAPI.
type IntegrationTestConfig struct {
	APIKey  string
	APIURL  string
	APIHost string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if RAPIDAPI_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("RAPIDAPI_KEY")
	if apiKey == "" {
		t.Skip("RAPIDAPI_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://weatherapi-com.p.rapidapi.com"
	}
	apiHost := os.Getenv("RAPIDAPI_HOST")
	if apiHost == "" {
		apiHost = TestAPIHost
	}

	return IntegrationTestConfig{APIKey: apiKey, APIURL: apiURL, APIHost: apiHost}
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.WeatherAPIClient {
	c, err := client.NewWeatherAPIClient(cfg.APIKey, cfg.APIURL, cfg.APIHost, 5*time.Second)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService creates a weather service over the live client and a small cache.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, *cache.LRUCache) {
	lru := cache.NewLRUCache(10)
	return service.NewWeatherService(SetupIntegrationClient(t, cfg), lru, traffic.NewTracker(time.Minute)), lru
}
