package http

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-gateway/internal/observability"
)

// Route is a method and path pair guarded by AuthMiddleware.
type Route struct {
	Method string
	Path   string
}

// ProtectedRoutes are the routes that require a bearer token.
var ProtectedRoutes = []Route{
	{Method: http.MethodGet, Path: "/api/weather"},
}

// AuthMiddleware requires a valid bearer token on protected routes and forwards every other
// request untouched. Missing, malformed and expired tokens all get the same 401.
func AuthMiddleware(verifier TokenVerifier, protected []Route) mux.MiddlewareFunc {
	guarded := make(map[Route]struct{}, len(protected))
	for _, rt := range protected {
		guarded[rt] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := guarded[Route{Method: r.Method, Path: r.URL.Path}]; !ok {
				next.ServeHTTP(w, r)
				return
			}

			logger := observability.LoggerFromContext(r.Context())
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.Info("missing bearer token")
				denyAuth(w, r)
				return
			}
			claims, err := verifier.Validate(raw)
			if err != nil {
				logger.Info("invalid bearer token", zap.Error(err))
				denyAuth(w, r)
				return
			}
			logger.Debug("authenticated request", zap.String("subject", claims.Subject))
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from an Authorization header. The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func denyAuth(w http.ResponseWriter, r *http.Request) {
	observability.AuthFailuresTotal.Inc()
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, r, http.StatusUnauthorized, msgAuthFailed)
}
