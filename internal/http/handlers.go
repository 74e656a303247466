package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-gateway/internal/client"
	"github.com/kjstillabower/weather-gateway/internal/models"
	"github.com/kjstillabower/weather-gateway/internal/observability"
	"github.com/kjstillabower/weather-gateway/internal/token"
	"github.com/kjstillabower/weather-gateway/internal/traffic"
	"github.com/kjstillabower/weather-gateway/internal/validation"
)

// maxBodyBytes caps register/login request bodies.
const maxBodyBytes = 1 << 20

// WeatherGetter serves weather lookups by client IP.
type WeatherGetter interface {
	GetWeather(ctx context.Context, ip string) (models.Weather, error)
}

// AccountService registers users and checks credentials.
type AccountService interface {
	Register(ctx context.Context, req models.RegisterRequest) (models.User, error)
	Authenticate(ctx context.Context, req models.LoginRequest) error
}

// TokenIssuer signs session tokens for authenticated users.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Validate(raw string) (token.Claims, error)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	Window           time.Duration
	DegradedErrorPct int
	// DatabasePing, when set, is called to check credential store reachability.
	DatabasePing func(ctx context.Context) error
}

// Deps are the collaborators a Handler serves requests with.
type Deps struct {
	Weather   WeatherGetter
	Accounts  AccountService
	Tokens    TokenIssuer
	Validator *validation.Validator
	Health    *HealthConfig
	Tracker   *traffic.Tracker
	Logger    *zap.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather   WeatherGetter
	accounts  AccountService
	tokens    TokenIssuer
	validator *validation.Validator
	health    *HealthConfig
	tracker   *traffic.Tracker
	logger    *zap.Logger

	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(deps Deps) *Handler {
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handler{
		weather:   deps.Weather,
		accounts:  deps.Accounts,
		tokens:    deps.Tokens,
		validator: deps.Validator,
		health:    deps.Health,
		tracker:   deps.Tracker,
		logger:    deps.Logger,
	}
}

// SetShuttingDown flips the health endpoint to shutting-down. Call when SIGTERM/SIGINT is received.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// Register handles POST /api/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	logger := observability.LoggerFromContext(r.Context())
	logger.Info("register request", zap.String("email", req.Email))

	user, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		observability.AccountOperationsTotal.WithLabelValues("register", accountErrorLabel(err)).Inc()
		writeAccountError(w, r, err)
		return
	}
	observability.AccountOperationsTotal.WithLabelValues("register", "success").Inc()
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /api/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	logger := observability.LoggerFromContext(r.Context())
	logger.Info("login request", zap.String("email", req.Email))

	if err := h.accounts.Authenticate(r.Context(), req); err != nil {
		observability.AccountOperationsTotal.WithLabelValues("login", accountErrorLabel(err)).Inc()
		writeAccountError(w, r, err)
		return
	}

	signed, err := h.tokens.Issue(req.Email)
	if err != nil {
		observability.AccountOperationsTotal.WithLabelValues("login", "token_error").Inc()
		writeTokenError(w, r, err)
		return
	}
	observability.AccountOperationsTotal.WithLabelValues("login", "success").Inc()
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: signed})
}

// GetWeather handles GET /api/weather. The caller's IP selects the location.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	ip, err := client.ExtractIP(r.RemoteAddr)
	if err != nil {
		writeWeatherError(w, r, err)
		return
	}

	result, err := h.weather.GetWeather(r.Context(), ip)
	if err != nil {
		writeWeatherError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeAndValidate reads a JSON body into dst and validates it, writing a 400 on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		observability.LoggerFromContext(r.Context()).Debug("invalid request body", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		writeValidationError(w, r, err)
		return false
	}
	return true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	database   string
	weatherAPI string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	window := h.healthWindow()
	rateLimit := map[string]interface{}{
		"window": window.String(),
	}
	if h.tracker != nil {
		rateLimit["delayedInWindow"] = h.tracker.Count(traffic.Delayed, window)
		rateLimit["rejectedInWindow"] = h.tracker.Count(traffic.Denied, window)
	}

	resp := map[string]interface{}{
		"status":  result.status,
		"service": "weather-gateway",
		"version": "dev",
		"checks": map[string]string{
			"weatherApi": result.weatherAPI,
			"database":   result.database,
		},
		"rateLimit": rateLimit,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

func (h *Handler) healthWindow() time.Duration {
	if h.health != nil && h.health.Window > 0 {
		return h.health.Window
	}
	return time.Minute
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > database unreachable > upstream error rate > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	res := healthResult{status: "healthy", statusCode: http.StatusOK, database: "healthy", weatherAPI: "healthy"}

	if h.health != nil && h.health.DatabasePing != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.health.DatabasePing(pingCtx)
		cancel()
		if err != nil {
			res.database = "unhealthy"
		}
	}
	if h.health != nil && h.tracker != nil && h.health.DegradedErrorPct > 0 {
		errs, total := h.tracker.ErrorRate(h.healthWindow())
		if total > 0 && float64(errs)*100/float64(total) >= float64(h.health.DegradedErrorPct) {
			res.weatherAPI = "unhealthy"
		}
	}

	switch {
	case h.shuttingDown.Load():
		res.status, res.statusCode, res.reason = "shutting-down", http.StatusServiceUnavailable, "signal"
	case res.database == "unhealthy":
		res.status, res.statusCode, res.reason = "degraded", http.StatusServiceUnavailable, "database_unreachable"
	case res.weatherAPI == "unhealthy":
		res.status, res.statusCode, res.reason = "degraded", http.StatusServiceUnavailable, "error_rate_breach"
	}
	return res
}
