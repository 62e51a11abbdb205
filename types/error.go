package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the router pipeline.
type ErrorCode string

const (
	// ErrRetrievalUnavailable signals an embedding or index collaborator
	// failure. Distinct from zero results, which is a valid outcome.
	ErrRetrievalUnavailable ErrorCode = "RETRIEVAL_UNAVAILABLE"

	// ErrGenerationFailed signals a generation collaborator failure. The
	// router recovers it into a degraded user-visible response.
	ErrGenerationFailed ErrorCode = "GENERATION_FAILED"

	// ErrConfigInvalid signals a malformed dictionary, synonym table, or
	// scenario config. Fatal at startup, never per request.
	ErrConfigInvalid ErrorCode = "CONFIG_INVALID"

	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
)

// Error is the typed error carried across module boundaries.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors by code so callers can use errors.Is with a bare
// &Error{Code: ...} sentinel.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// NewError creates a typed error wrapping an optional cause.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	var te *Error
	return errors.As(err, &te) && te.Code == code
}
