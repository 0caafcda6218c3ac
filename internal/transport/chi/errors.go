package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/lensmatch/internal/domain"
)

// ErrorCode is the machine-readable error code of an API error response.
type ErrorCode string

// API error codes.
const (
	ErrorCodeBadRequest      ErrorCode = "bad_request"
	ErrorCodeUnauthorized    ErrorCode = "unauthorized"
	ErrorCodePayloadTooLarge ErrorCode = "payload_too_large"
	ErrorCodeInvalidImage    ErrorCode = "invalid_image"
	ErrorCodeDetectionFailed ErrorCode = "detection_failed"
	ErrorCodeScanNotFound    ErrorCode = "scan_not_found"
	ErrorCodeHistoryDisabled ErrorCode = "history_disabled"
	ErrorCodeCancelled       ErrorCode = "request_cancelled"
	ErrorCodeInternalError   ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrInvalidImage, http.StatusBadRequest, ErrorCodeInvalidImage),
		sentinelHandler(domain.ErrDetection, http.StatusBadGateway, ErrorCodeDetectionFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeScanNotFound),
		sentinelHandler(domain.ErrHistoryDisabled, http.StatusNotImplemented, ErrorCodeHistoryDisabled),
		// 499 is the de-facto status for a client that went away.
		sentinelHandler(context.Canceled, 499, ErrorCodeCancelled),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidImage,
		domain.ErrDetection,
		domain.ErrNotFound,
		domain.ErrHistoryDisabled,
		context.Canceled,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}
