package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testJWTSecret = "c2VjcmV0LWtleS1mb3ItdGVzdHM="

// inConfigDir writes config/dev.yaml (and optional secrets.yaml) into a temp dir and makes it
// the working directory for the test.
func inConfigDir(t *testing.T, envYAML, secretsYAML string) {
	t.Helper()
	dir := t.TempDir()
	writeEnvFile(t, dir, envYAML)
	if secretsYAML != "" {
		writeSecretsFile(t, dir, secretsYAML)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
}

func withSecretsEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_NAME", "")
	t.Setenv("RAPIDAPI_KEY", "env-rapidapi-key")
	t.Setenv("JWT_SECRET", testJWTSecret)
}

func clearSecretsEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_NAME", "")
	t.Setenv("RAPIDAPI_KEY", "")
	t.Setenv("JWT_SECRET", "")
}

func TestLoad_FailsWhenNoAPIKey(t *testing.T) {
	clearSecretsEnv(t)
	inConfigDir(t, minimalEnvYAML, "")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when no RAPIDAPI_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "RAPIDAPI_KEY") {
		t.Errorf("Load() error = %v, want message containing RAPIDAPI_KEY", err)
	}
}

func TestLoad_FailsWhenNoJWTSecret(t *testing.T) {
	clearSecretsEnv(t)
	t.Setenv("RAPIDAPI_KEY", "env-rapidapi-key")
	inConfigDir(t, minimalEnvYAML, "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("Load() error = %v, want message containing JWT_SECRET", err)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	clearSecretsEnv(t)
	inConfigDir(t, minimalEnvYAML, "rapidapi_key: key-from-secrets-file\njwt_secret: "+testJWTSecret+"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RapidAPIKey != "key-from-secrets-file" {
		t.Errorf("RapidAPIKey = %q, want key from secrets file", cfg.RapidAPIKey)
	}
	if cfg.JWTSecret != testJWTSecret {
		t.Errorf("JWTSecret = %q, want secret from secrets file", cfg.JWTSecret)
	}
}

func TestLoad_EnvOverridesSecretsFile(t *testing.T) {
	withSecretsEnv(t)
	inConfigDir(t, minimalEnvYAML, "rapidapi_key: key-from-secrets-file\njwt_secret: "+testJWTSecret+"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RapidAPIKey != "env-rapidapi-key" {
		t.Errorf("RapidAPIKey = %q, want env value", cfg.RapidAPIKey)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	withSecretsEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")
	inConfigDir(t, minimalEnvYAML, "")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

// TestLoad_Defaults verifies an empty file yields the documented defaults.
func TestLoad_Defaults(t *testing.T) {
	withSecretsEnv(t)
	inConfigDir(t, "{}\n", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"ServerPort", cfg.ServerPort, "8080"},
		{"WeatherAPIURL", cfg.WeatherAPIURL, "https://weatherapi-com.p.rapidapi.com"},
		{"RapidAPIHost", cfg.RapidAPIHost, "weatherapi-com.p.rapidapi.com"},
		{"WeatherAPITimeout", cfg.WeatherAPITimeout, 5 * time.Second},
		{"JWTExpireMin", cfg.JWTExpireMin, int64(30)},
		{"CacheCapacity", cfg.CacheCapacity, 100},
		{"RateLimitStrategy", cfg.RateLimitStrategy, "fixed_window"},
		{"RateLimitRequests", cfg.RateLimitRequests, 10},
		{"RateLimitWindow", cfg.RateLimitWindow, 60 * time.Second},
		{"RateLimitMaxWait", cfg.RateLimitMaxWait, time.Duration(0)},
		{"CircuitBreakerEnabled", cfg.CircuitBreakerEnabled, false},
		{"BcryptCost", cfg.BcryptCost, 12},
		{"WriteTimeout", cfg.WriteTimeout, time.Duration(0)},
		{"InFlightTimeout", cfg.InFlightTimeout, 70 * time.Second},
		{"DegradedErrorPct", cfg.DegradedErrorPct, 50},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	withSecretsEnv(t)
	inConfigDir(t, `
rate_limit:
  window: "not-a-duration"
request:
  timeout: "-5s"
`, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RateLimitWindow != 60*time.Second {
		t.Errorf("RateLimitWindow = %v, want 60s", cfg.RateLimitWindow)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
}

// TestLoad_ValidationErrors verifies post-load validation rejects unusable values.
func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		secret  string
		wantErr string
	}{
		{name: "zero upstream timeout", yaml: "weather_api:\n  timeout: \"0s\"\n", wantErr: "weather_api.timeout"},
		{name: "negative expire", yaml: "jwt:\n  expire_min: -1\n", wantErr: "jwt.expire_min"},
		{name: "negative capacity", yaml: "cache:\n  capacity: -1\n", wantErr: "cache.capacity"},
		{name: "negative requests", yaml: "rate_limit:\n  requests: -3\n", wantErr: "rate_limit.requests"},
		{name: "unknown strategy", yaml: "rate_limit:\n  strategy: leaky_bucket\n", wantErr: "rate_limit.strategy"},
		{name: "negative max wait", yaml: "rate_limit:\n  max_wait: \"-1s\"\n", wantErr: "rate_limit.max_wait"},
		{name: "degraded pct over 100", yaml: "health:\n  degraded_error_pct: 150\n", wantErr: "degraded_error_pct"},
		{name: "secret not base64", yaml: "{}\n", secret: "not base64!", wantErr: "JWT_SECRET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withSecretsEnv(t)
			if tt.secret != "" {
				t.Setenv("JWT_SECRET", tt.secret)
			}
			inConfigDir(t, tt.yaml, "")

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want message containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_TimeoutAdjustments(t *testing.T) {
	withSecretsEnv(t)
	inConfigDir(t, `
server:
  write_timeout: "5s"
weather_api:
  timeout: "8s"
request:
  timeout: "3s"
rate_limit:
  window: "30s"
`, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 9*time.Second {
		t.Errorf("RequestTimeout = %v, want 9s (upstream timeout + 1s)", cfg.RequestTimeout)
	}
	if cfg.WriteTimeout != 39*time.Second {
		t.Errorf("WriteTimeout = %v, want 39s (window + request timeout)", cfg.WriteTimeout)
	}
	if cfg.RateLimitMaxWait != 30*time.Second {
		t.Errorf("RateLimitMaxWait = %v, want 30s (write timeout - request timeout)", cfg.RateLimitMaxWait)
	}
}

// TestLoad_WriteTimeoutCapsHold verifies that a finite write timeout caps how long a request can
// be held for quota, since queued requests may wait several windows.
func TestLoad_WriteTimeoutCapsHold(t *testing.T) {
	tests := []struct {
		name        string
		maxWait     string
		wantMaxWait time.Duration
	}{
		{"unset max wait takes the budget", "", 111 * time.Second},
		{"shorter max wait kept", "10s", 10 * time.Second},
		{"longer max wait capped", "300s", 111 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withSecretsEnv(t)
			inConfigDir(t, `
server:
  write_timeout: "120s"
weather_api:
  timeout: "8s"
request:
  timeout: "9s"
rate_limit:
  window: "30s"
  max_wait: "`+tt.maxWait+`"
`, "")

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.WriteTimeout != 120*time.Second {
				t.Errorf("WriteTimeout = %v, want 120s", cfg.WriteTimeout)
			}
			if cfg.RateLimitMaxWait != tt.wantMaxWait {
				t.Errorf("RateLimitMaxWait = %v, want %v", cfg.RateLimitMaxWait, tt.wantMaxWait)
			}
		})
	}
}

func TestLoad_UnboundedWriteTimeoutKeepsPureDelay(t *testing.T) {
	withSecretsEnv(t)
	inConfigDir(t, `
server:
  write_timeout: "0s"
rate_limit:
  window: "30s"
`, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RateLimitMaxWait != 0 {
		t.Errorf("RateLimitMaxWait = %v, want 0 (hold until a window opens)", cfg.RateLimitMaxWait)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	withSecretsEnv(t)
	inConfigDir(t, "server: [unclosed\n", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse config file error", err)
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	clearSecretsEnv(t)
	inConfigDir(t, minimalEnvYAML, "rapidapi_key: [unclosed\n")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse secrets file") {
		t.Errorf("Load() error = %v, want parse secrets file error", err)
	}
}

// TestLoad_RepositoryDevConfig verifies the checked-in config/dev.yaml loads.
func TestLoad_RepositoryDevConfig(t *testing.T) {
	withSecretsEnv(t)
	origWd, _ := os.Getwd()
	if err := os.Chdir(findProjectRoot(t)); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RateLimitRequests != 10 || cfg.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d/%v, want 10/1m", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if cfg.CacheCapacity != 100 {
		t.Errorf("CacheCapacity = %d, want 100", cfg.CacheCapacity)
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  url: "https://weather.example.com"
  rapidapi_host: "weather.example.com"
  timeout: "2s"
request:
  timeout: "5s"
cache:
  capacity: 10
rate_limit:
  requests: 10
  window: "60s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
