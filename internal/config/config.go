package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	RapidAPIKey       string
	WeatherAPIURL     string
	RapidAPIHost      string
	WeatherAPITimeout time.Duration

	JWTSecret    string
	JWTExpireMin int64

	DatabasePath     string
	DatabaseMaxConns int
	BcryptCost       int

	CacheCapacity int

	RateLimitStrategy string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitMaxWait  time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	RequestTimeout time.Duration

	ShutdownTimeout time.Duration
	InFlightTimeout time.Duration

	HealthWindow     time.Duration
	DegradedErrorPct int
}

type fileConfig struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL          string `yaml:"url"`
		RapidAPIHost string `yaml:"rapidapi_host"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"weather_api"`

	JWT struct {
		ExpireMin int64 `yaml:"expire_min"`
	} `yaml:"jwt"`

	Database struct {
		Path           string `yaml:"path"`
		MaxConnections int    `yaml:"max_connections"`
		BcryptCost     int    `yaml:"bcrypt_cost"`
	} `yaml:"database"`

	Cache struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"cache"`

	RateLimit struct {
		Strategy string `yaml:"strategy"`
		Requests int    `yaml:"requests"`
		Window   string `yaml:"window"`
		MaxWait  string `yaml:"max_wait"`
	} `yaml:"rate_limit"`

	CircuitBreaker struct {
		Enabled          bool   `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Shutdown struct {
		Timeout         string `yaml:"timeout"`
		InFlightTimeout string `yaml:"in_flight_timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window           string `yaml:"window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`
}

type secretsFile struct {
	RapidAPIKey string `yaml:"rapidapi_key"`
	JWTSecret   string `yaml:"jwt_secret"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// RAPIDAPI_KEY and JWT_SECRET env vars take precedence over the secrets file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.ReadTimeout = parseDuration(fc.Server.ReadTimeout, 10*time.Second)
	cfg.WriteTimeout = parseDurationOrZero(fc.Server.WriteTimeout, 0)

	cfg.RapidAPIKey = firstNonEmpty(os.Getenv("RAPIDAPI_KEY"), sec.RapidAPIKey)
	if cfg.RapidAPIKey == "" {
		return nil, fmt.Errorf("RAPIDAPI_KEY required (set env or config/secrets.yaml rapidapi_key)")
	}
	cfg.JWTSecret = firstNonEmpty(os.Getenv("JWT_SECRET"), sec.JWTSecret)
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET required (set env or config/secrets.yaml jwt_secret)")
	}

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://weatherapi-com.p.rapidapi.com"
	}
	cfg.RapidAPIHost = fc.WeatherAPI.RapidAPIHost
	if cfg.RapidAPIHost == "" {
		cfg.RapidAPIHost = "weatherapi-com.p.rapidapi.com"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)

	cfg.JWTExpireMin = fc.JWT.ExpireMin
	if cfg.JWTExpireMin == 0 {
		cfg.JWTExpireMin = 30
	}

	cfg.DatabasePath = strings.TrimSpace(fc.Database.Path)
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "weather-gateway.db"
	}
	cfg.DatabaseMaxConns = fc.Database.MaxConnections
	if cfg.DatabaseMaxConns <= 0 {
		cfg.DatabaseMaxConns = 5
	}
	cfg.BcryptCost = fc.Database.BcryptCost
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = 12
	}

	cfg.CacheCapacity = fc.Cache.Capacity
	if cfg.CacheCapacity == 0 {
		cfg.CacheCapacity = 100
	}

	cfg.RateLimitStrategy = strings.TrimSpace(strings.ToLower(fc.RateLimit.Strategy))
	if cfg.RateLimitStrategy == "" {
		cfg.RateLimitStrategy = "fixed_window"
	}
	cfg.RateLimitRequests = fc.RateLimit.Requests
	if cfg.RateLimitRequests == 0 {
		cfg.RateLimitRequests = 10
	}
	cfg.RateLimitWindow = parseDuration(fc.RateLimit.Window, 60*time.Second)
	cfg.RateLimitMaxWait = parseDurationOrZero(fc.RateLimit.MaxWait, 0)

	cfg.CircuitBreakerEnabled = fc.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, cfg.RateLimitWindow+cfg.RequestTimeout)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above WeatherAPITimeout, and a finite WriteTimeout is raised so a
// request held for a full rate-limit window can still be answered.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if cfg.JWTExpireMin <= 0 {
		return fmt.Errorf("jwt.expire_min must be positive, got %d", cfg.JWTExpireMin)
	}
	if key, err := base64.StdEncoding.DecodeString(cfg.JWTSecret); err != nil || len(key) == 0 {
		return fmt.Errorf("JWT_SECRET must be non-empty standard base64")
	}
	if cfg.CacheCapacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", cfg.CacheCapacity)
	}
	if cfg.RateLimitRequests <= 0 {
		return fmt.Errorf("rate_limit.requests must be positive, got %d", cfg.RateLimitRequests)
	}
	if cfg.RateLimitMaxWait < 0 {
		return fmt.Errorf("rate_limit.max_wait must not be negative")
	}
	switch cfg.RateLimitStrategy {
	case "fixed_window", "token_bucket":
	default:
		return fmt.Errorf("rate_limit.strategy must be fixed_window or token_bucket, got %q", cfg.RateLimitStrategy)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be <= 100, got %d", cfg.DegradedErrorPct)
	}
	// A finite write timeout bounds how long a request may be held for quota. Queued waiters
	// reserve successive windows, so the hold is capped through max_wait: requests that would
	// be held past the write deadline get 429 instead of a dropped connection.
	if cfg.WriteTimeout > 0 {
		maxHold := cfg.RateLimitWindow
		if cfg.RateLimitMaxWait > 0 {
			maxHold = cfg.RateLimitMaxWait
		}
		if floor := maxHold + cfg.RequestTimeout; cfg.WriteTimeout < floor {
			cfg.WriteTimeout = floor
		}
		if budget := cfg.WriteTimeout - cfg.RequestTimeout; cfg.RateLimitMaxWait == 0 || cfg.RateLimitMaxWait > budget {
			cfg.RateLimitMaxWait = budget
		}
	}
	return nil
}
