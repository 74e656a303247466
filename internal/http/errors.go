package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-gateway/internal/client"
	"github.com/kjstillabower/weather-gateway/internal/models"
	"github.com/kjstillabower/weather-gateway/internal/observability"
	"github.com/kjstillabower/weather-gateway/internal/users"
	"github.com/kjstillabower/weather-gateway/internal/validation"
)

const (
	msgInternal     = "Internal Server Error"
	msgAuthFailed   = "Authentication failed. Please provide a valid JWT token."
	msgTooMany      = "Too many requests"
	msgDuplicate    = "Email already exists"
	msgUserNotFound = "User not found"
	msgPassword     = "Password mismatched"
	msgBadUpstream  = "Bad request to weather API"
	msgForbidden    = "Access to the weather API is forbidden"
	msgUnknown      = "Unknown error occurred"
)

// weatherErrorResponse maps a weather lookup error to its HTTP status and message.
func weatherErrorResponse(err error) (int, string) {
	switch client.KindOf(err) {
	case client.KindBadRequest:
		return http.StatusBadRequest, msgBadUpstream
	case client.KindForbidden:
		return http.StatusForbidden, msgForbidden
	case client.KindUnknown:
		return http.StatusInternalServerError, msgUnknown
	case client.KindHTTPRequest, client.KindIPExtraction, client.KindNone:
		return http.StatusInternalServerError, msgInternal
	}
	return http.StatusInternalServerError, msgInternal
}

// accountErrorResponse maps a register/login error to its HTTP status and message.
func accountErrorResponse(err error) (int, string) {
	switch users.KindOf(err) {
	case users.KindDuplicate:
		return http.StatusConflict, msgDuplicate
	case users.KindNotFound:
		return http.StatusNotFound, msgUserNotFound
	case users.KindPasswordMismatch:
		return http.StatusUnauthorized, msgPassword
	case users.KindInternal, users.KindNone:
		return http.StatusInternalServerError, msgInternal
	}
	return http.StatusInternalServerError, msgInternal
}

// accountErrorLabel is the outcome label for AccountOperationsTotal.
func accountErrorLabel(err error) string {
	return users.KindOf(err).String()
}

func writeWeatherError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := weatherErrorResponse(err)
	logger := observability.LoggerFromContext(r.Context())
	kind := client.KindOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("weather request failed", zap.String("kind", kind.String()), zap.Error(err))
	} else {
		logger.Warn("weather request rejected upstream", zap.String("kind", kind.String()), zap.Error(err))
	}
	writeError(w, r, status, msg)
}

func writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := accountErrorResponse(err)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("account operation failed", zap.Error(err))
	}
	writeError(w, r, status, msg)
}

func writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("token signing failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, msgInternal)
}

// writeValidationError reports the first failing rule as a 400.
func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *validation.FieldError
	if errors.As(err, &fe) {
		writeError(w, r, http.StatusBadRequest, fe.Message)
		return
	}
	if errors.Is(err, validation.ErrInvalid) {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	observability.LoggerFromContext(r.Context()).Error("validation failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, msgInternal)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the uniform {code, message} error body.
func writeError(w http.ResponseWriter, _ *http.Request, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Code: status, Message: message})
}
