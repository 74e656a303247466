// Package testhelpers builds a fully wired gateway against a fake WeatherAPI upstream for
// end-to-end tests.
package testhelpers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kjstillabower/weather-gateway/internal/cache"
	"github.com/kjstillabower/weather-gateway/internal/client"
	httphandler "github.com/kjstillabower/weather-gateway/internal/http"
	"github.com/kjstillabower/weather-gateway/internal/models"
	"github.com/kjstillabower/weather-gateway/internal/ratelimit"
	"github.com/kjstillabower/weather-gateway/internal/service"
	"github.com/kjstillabower/weather-gateway/internal/token"
	"github.com/kjstillabower/weather-gateway/internal/traffic"
	"github.com/kjstillabower/weather-gateway/internal/users"
)

// TestAPIKey and TestAPIHost are what the fake upstream expects in the RapidAPI headers.
const (
	TestAPIKey  = "test-rapidapi-key"
	TestAPIHost = "weatherapi-com.p.rapidapi.com"
)

// TestJWTSecret is a base64 signing secret for tests.
var TestJWTSecret = base64.StdEncoding.EncodeToString([]byte("gateway-end-to-end-test-secret"))

// SampleWeather is the body the fake upstream serves on 200.
func SampleWeather() models.Weather {
	return models.Weather{
		Location: models.Location{Name: "Seattle", Country: "United States of America", Localtime: "2026-10-19 09:00"},
		Current:  models.Current{TempC: 11.1, WindKph: 13.7, WindDir: "SSW", Humidity: 87},
	}
}

// FakeUpstream is an httptest WeatherAPI that counts calls and serves a configurable status.
type FakeUpstream struct {
	Server *httptest.Server

	calls  atomic.Int32
	status atomic.Int32

	mu      sync.Mutex
	queries []string
}

// NewFakeUpstream starts a fake upstream answering 200 with SampleWeather.
func NewFakeUpstream(t *testing.T) *FakeUpstream {
	t.Helper()
	f := &FakeUpstream{}
	f.status.Store(http.StatusOK)
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, r.URL.Query().Get("q"))
	f.mu.Unlock()

	if r.URL.Path != "/current.json" || r.Header.Get("x-rapidapi-key") != TestAPIKey || r.Header.Get("x-rapidapi-host") != TestAPIHost {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	status := int(f.status.Load())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusOK {
		_ = json.NewEncoder(w).Encode(SampleWeather())
		return
	}
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"fake upstream"}}`, status)
}

// SetStatus changes the status served from now on.
func (f *FakeUpstream) SetStatus(code int) { f.status.Store(int32(code)) }

// Calls returns how many requests reached the upstream.
func (f *FakeUpstream) Calls() int { return int(f.calls.Load()) }

// Queries returns the q parameters received, in order.
func (f *FakeUpstream) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// GatewayOptions tune the wired gateway. Zero values get test-friendly defaults.
type GatewayOptions struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitMaxWait  time.Duration
	CacheCapacity     int
	TokenTTLMinutes   int64
	Logger            *zap.Logger
}

// Gateway is a running gateway and its collaborators.
type Gateway struct {
	Server   *httptest.Server
	Upstream *FakeUpstream
	Store    *users.Store
	Tokens   *token.Service
	Cache    *cache.LRUCache
	Tracker  *traffic.Tracker
	Handler  *httphandler.Handler
}

// NewGateway wires the full request pipeline against a fresh fake upstream and in-memory store.
func NewGateway(t *testing.T, opts GatewayOptions) *Gateway {
	t.Helper()
	if opts.RateLimitRequests == 0 {
		opts.RateLimitRequests = 1000
	}
	if opts.RateLimitWindow == 0 {
		opts.RateLimitWindow = time.Minute
	}
	if opts.CacheCapacity == 0 {
		opts.CacheCapacity = 100
	}
	if opts.TokenTTLMinutes == 0 {
		opts.TokenTTLMinutes = 30
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	upstream := NewFakeUpstream(t)

	store, err := users.Open(context.Background(), ":memory:", 1, opts.Logger)
	if err != nil {
		t.Fatalf("users.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	weatherClient, err := client.NewWeatherAPIClient(TestAPIKey, upstream.Server.URL, TestAPIHost, 2*time.Second)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}

	lru := cache.NewLRUCache(opts.CacheCapacity)
	tracker := traffic.NewTracker(time.Minute)
	tokens := token.NewService(TestJWTSecret, opts.TokenTTLMinutes)
	limiter, err := ratelimit.New(ratelimit.Config{
		Strategy: ratelimit.StrategyFixedWindow,
		Requests: opts.RateLimitRequests,
		Window:   opts.RateLimitWindow,
		MaxWait:  opts.RateLimitMaxWait,
	})
	if err != nil {
		t.Fatalf("ratelimit.New() error = %v", err)
	}

	handler := httphandler.NewHandler(httphandler.Deps{
		Weather:  service.NewWeatherService(weatherClient, lru, tracker),
		Accounts: users.NewAccounts(store, bcrypt.MinCost),
		Tokens:   tokens,
		Health:   &httphandler.HealthConfig{Window: time.Minute, DegradedErrorPct: 50, DatabasePing: store.Ping},
		Tracker:  tracker,
		Logger:   opts.Logger,
	})
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         opts.Logger,
		Limiter:        limiter,
		Tracker:        tracker,
		Verifier:       tokens,
		InFlight:       httphandler.NewInFlightTracker(),
		RequestTimeout: 5 * time.Second,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &Gateway{
		Server:   srv,
		Upstream: upstream,
		Store:    store,
		Tokens:   tokens,
		Cache:    lru,
		Tracker:  tracker,
		Handler:  handler,
	}
}

// PostJSON sends body as JSON to path.
func (g *Gateway) PostJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(g.Server.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// Register creates an account and returns the response.
func (g *Gateway) Register(t *testing.T, name, email, password string) *http.Response {
	t.Helper()
	return g.PostJSON(t, "/api/register", models.RegisterRequest{Name: name, Email: email, Password: password})
}

// Login returns a token for existing credentials, failing the test on a non-200.
func (g *Gateway) Login(t *testing.T, email, password string) string {
	t.Helper()
	resp := g.PostJSON(t, "/api/login", models.LoginRequest{Email: email, Password: password})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var out models.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out.Token
}

// SignUp registers and logs in a fresh user, returning a bearer token.
func (g *Gateway) SignUp(t *testing.T, email string) string {
	t.Helper()
	resp := g.Register(t, "Test User", email, "correct horse battery")
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	return g.Login(t, email, "correct horse battery")
}

// GetWeather calls the weather route, with a bearer token when bearer is non-empty.
func (g *Gateway) GetWeather(t *testing.T, bearer string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, g.Server.URL+"/api/weather", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/weather: %v", err)
	}
	return resp
}
