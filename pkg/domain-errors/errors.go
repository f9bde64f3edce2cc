// Package domainerrors defines coded errors shared across services and
// handlers. Services attach a Code so transport layers can map failures to
// HTTP statuses without string matching, and callers can branch on error kind
// with HasCode instead of unwrapping concrete types.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. Codes are stable API: handlers serialize
// them into error envelopes, so renaming one is a breaking change.
type Code string

const (
	// CodeBadRequest marks a structurally invalid request (missing required
	// field, malformed body, out-of-range batch size).
	CodeBadRequest Code = "bad_request"
	// CodeValidation marks a locally detected format error in a business
	// identifier. No external call was attempted.
	CodeValidation Code = "validation_failed"
	// CodeNotFound marks an absent entity.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a lost compare-and-swap race or uniqueness clash.
	// Callers should re-read state before retrying.
	CodeConflict Code = "conflict"
	// CodeInvalidTransition marks a workflow event that has no transition
	// from the current onboarding step.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeExpired marks a confirmation token past its expiry window.
	CodeExpired Code = "expired"
	// CodeAlreadyUsed marks a confirmation token that was already redeemed.
	CodeAlreadyUsed Code = "already_used"
	// CodeUnauthorized marks a missing or unverifiable reviewer credential.
	CodeUnauthorized Code = "unauthorized"
	// CodeUnavailable marks a dependency that is temporarily unreachable.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks everything we do not want to leak details about.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. Message is safe to show to API callers.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a caller-facing message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted caller-facing message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Is / errors.Unwrap for sentinel checks.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			break
		}
	}
	return false
}

// Is is a readability alias for HasCode used at call sites that read like
// dErrors.Is(err, dErrors.CodeNotFound).
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the HTTP status handlers should emit.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition, CodeAlreadyUsed:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
