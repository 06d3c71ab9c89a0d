// Package llm is the provider-agnostic gateway to the language model. It
// builds requests, enforces per-call timeouts, classifies provider failures
// into retryable and terminal kinds, and retries with capped exponential
// backoff.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/tbourn/go-insights-backend/internal/validate"
)

// Kind is the failure category of a model call.
type Kind string

const (
	KindAuth            Kind = "auth"
	KindRateLimit       Kind = "rate_limit"
	KindTimeout         Kind = "timeout"
	KindInvalidResponse Kind = "invalid_response"
	KindAPI             Kind = "api"
)

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string
	Status   int // HTTP status when known
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Classification says whether a failure may be retried.
type Classification struct {
	Retryable bool
	Kind      Kind
}

// KindForStatus maps an HTTP status from a provider to a failure kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindAPI
	}
}

// Classify reports the kind of err and whether retrying may help.
// Authentication failures are the only terminal kind.
func Classify(err error) Classification {
	k := kindOf(err)
	return Classification{Kind: k, Retryable: k != KindAuth}
}

func kindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	var se *validate.StructureError
	if errors.As(err, &se) {
		return KindInvalidResponse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindAPI
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return kindOf(err) == KindAuth }

// wrap classifies a raw provider error, keeping an existing *Error as is.
func wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		if le.Provider == "" {
			le.Provider = provider
		}
		return le
	}
	return &Error{Kind: kindOf(err), Provider: provider, Err: err}
}
