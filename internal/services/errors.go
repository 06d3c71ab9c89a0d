// Package services defines the business logic for insight generation,
// history and export. This file centralizes service-level error values so
// that they can be returned by service methods and checked by callers with
// errors.Is.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every input validation error.
var ErrValidation = errors.New("validation failed")

// Input validation errors. Both wrap ErrValidation.
var (
	// ErrInvalidDate is returned when a date is not an ISO calendar date
	// (YYYY-MM-DD).
	ErrInvalidDate = fmt.Errorf("%w: dates must be YYYY-MM-DD", ErrValidation)

	// ErrInvalidRange is returned when the start date is after the end date.
	ErrInvalidRange = fmt.Errorf("%w: start_date must not be after end_date", ErrValidation)
)

// Insight errors.
var (
	// ErrInsightNotFound indicates that the requested insight does not exist
	// or is not owned by the current user.
	ErrInsightNotFound = errors.New("insight not found")

	// ErrInsightGenerationFailed is returned when neither a fresh insight nor
	// any fallback could be produced.
	ErrInsightGenerationFailed = errors.New("insight generation failed")

	// ErrPersistence wraps store failures that this layer does not retry.
	ErrPersistence = errors.New("persistence error")
)

// Export errors.
var (
	// ErrNotImplemented is returned for export formats that are recognised
	// but not built (pdf).
	ErrNotImplemented = errors.New("export format not implemented")

	// ErrUnsupportedFormat is returned for unknown export formats.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
