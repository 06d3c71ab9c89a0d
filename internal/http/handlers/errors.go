// Package handlers defines the HTTP error taxonomy for the insights API.
//
// Every error response carries a stable, lowercase snake_case code next to
// the HTTP status so clients can branch without parsing messages:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "generation_failed",
//	  "message": "insight generation is temporarily unavailable"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-insights-backend/internal/llm"
	"github.com/tbourn/go-insights-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeInvalidDate       = "invalid_date"
	ErrCodeInvalidRange      = "invalid_range"
	ErrCodeUnsupportedFormat = "unsupported_format"
	ErrCodeNotImplemented    = "not_implemented"
	ErrCodeGenerationFailed  = "generation_failed"
	ErrCodeModelAuth         = "model_auth_failed"
	ErrCodePersistence       = "persistence_failed"
)

// classify maps a service error to status, code and a client-safe message.
// Unknown errors become 500 without leaking their text.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrInvalidDate):
		return http.StatusBadRequest, ErrCodeInvalidDate, "dates must be YYYY-MM-DD calendar dates"
	case errors.Is(err, services.ErrInvalidRange):
		return http.StatusBadRequest, ErrCodeInvalidRange, "start_date must not be after end_date"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, services.ErrInsightNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "insight not found"
	case errors.Is(err, services.ErrUnsupportedFormat):
		return http.StatusBadRequest, ErrCodeUnsupportedFormat, "format must be text or pdf"
	case errors.Is(err, services.ErrNotImplemented):
		return http.StatusNotImplemented, ErrCodeNotImplemented, "pdf export is not implemented"
	case llm.IsAuth(err):
		return http.StatusServiceUnavailable, ErrCodeModelAuth, "insight generation is temporarily unavailable"
	case errors.Is(err, services.ErrInsightGenerationFailed):
		return http.StatusServiceUnavailable, ErrCodeGenerationFailed, "insight generation is temporarily unavailable"
	case errors.Is(err, services.ErrPersistence):
		return http.StatusInternalServerError, ErrCodePersistence, "could not access stored insights"
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
	}
}
