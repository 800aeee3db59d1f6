// Package errors provides structured error types for the review pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout            = errors.New("operation timed out")
	ErrAuthFailure        = errors.New("authentication failed")
	ErrRateLimit          = errors.New("rate limit exceeded")
	ErrUnavailable        = errors.New("service unavailable")
	ErrNotFound           = errors.New("resource not found")
	ErrMalformedReference = errors.New("malformed contribution reference")
	ErrConfiguration      = errors.New("configuration error")
	ErrIllegalTransition  = errors.New("illegal phase transition")
)

// APIError represents an error from an external API call.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// ValidationError reports collaborator output that does not match its schema.
type ValidationError struct {
	Stage    string
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("%s: invalid output", e.Stage)
	}
	return fmt.Sprintf("%s: invalid output: %s", e.Stage, strings.Join(e.Problems, "; "))
}

// NewValidationError creates a validation error for the given stage.
func NewValidationError(stage string, problems ...string) *ValidationError {
	return &ValidationError{Stage: stage, Problems: problems}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err means the identifier did not resolve.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}

// Kind returns a short label for err, used in skip records and metrics labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMalformedReference):
		return "malformed_reference"
	case IsNotFound(err):
		return "not_found"
	case IsValidation(err):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrAuthFailure):
		return "auth"
	case IsRetryable(err):
		return "transient"
	default:
		return "other"
	}
}
