package registry

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized failure taxonomy for registry calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates the registry took too long to respond.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the registry returned a malformed or
	// contract-violating payload.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorOutage indicates the registry is unreachable or answered with a
	// server error.
	ErrorOutage ErrorCategory = "outage"

	// ErrorNotFound indicates the identifier is not known to the registry.
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates the externally imposed call budget is
	// exhausted. Callers must fall back, not retry.
	ErrorRateLimited ErrorCategory = "rate_limited"
)

// ClientError wraps registry failures with a normalized category so the
// validation layer can decide fallback behavior without inspecting transport
// details.
type ClientError struct {
	Category   ErrorCategory
	Registry   string
	Message    string
	Underlying error
}

func (e *ClientError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("registry %s [%s]: %s: %v", e.Registry, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("registry %s [%s]: %s", e.Registry, e.Category, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Underlying
}

// NewClientError creates a normalized registry client error.
func NewClientError(category ErrorCategory, registryName, message string, underlying error) *ClientError {
	return &ClientError{
		Category:   category,
		Registry:   registryName,
		Message:    message,
		Underlying: underlying,
	}
}

// CategoryOf extracts the error category from an error chain. Errors that
// are not ClientErrors count as outages: the caller could not get an answer.
func CategoryOf(err error) ErrorCategory {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ErrorOutage
}
