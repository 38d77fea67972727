// Package handlers implements the HTTP route handlers. Responses are flat
// JSON bodies; error bodies are always {"error": "<message>"}.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/amul-dhungel/Deepwork/api"
	"github.com/amul-dhungel/Deepwork/types"
	"go.uber.org/zap"
)

// missingSessionMsg is the exact body text clients match on.
const missingSessionMsg = "Missing " + api.SessionHeader + " header"

// WriteJSON writes a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError maps an error to an HTTP status and writes {"error": msg}.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := statusFor(err)
	if logger != nil {
		logger.Warn("request failed",
			zap.Int("status", status),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
	}
	WriteJSON(w, status, api.ErrorResponse{Error: err.Error()})
}

// WriteErrorMessage writes {"error": msg} with an explicit status.
func WriteErrorMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, api.ErrorResponse{Error: msg})
}

// statusFor maps the structured error taxonomy to HTTP statuses. Unknown
// errors are internal.
func statusFor(err error) int {
	var typed *types.Error
	if !errors.As(err, &typed) {
		return http.StatusInternalServerError
	}

	switch typed.Code {
	case types.ErrRateLimited, types.ErrQuotaExceeded:
		return http.StatusTooManyRequests
	case types.ErrForbidden, types.ErrNoCredits:
		return http.StatusForbidden
	case types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrNotConfigured:
		return http.StatusServiceUnavailable
	case types.ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes the request body into dst, writing a 400 on failure.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		WriteErrorMessage(w, http.StatusBadRequest, "request body is empty")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// RequireSessionID extracts the session header, writing the canonical 400
// body when absent.
func RequireSessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(api.SessionHeader)
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, missingSessionMsg)
		return "", false
	}
	return id, true
}
