// Package domainerrors defines the coded error type shared by every service.
// Services attach a Code so callers can tell "fix the request" apart from
// "retry later" without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. The taxonomy mirrors the custody rules:
// validation, authorization, state-conflict, temporal, and invariant-guard
// failures each map to a distinct code.
type Code string

const (
	// CodeInvalidInput marks validation failures: zero amounts, nil
	// accounts, empty required text. These never succeed on retry.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks malformed requests at the transport boundary.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized marks unauthenticated callers.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks callers lacking the required capability.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks missing proposals, projects, or transactions.
	CodeNotFound Code = "not_found"
	// CodeConflict marks state conflicts: already executed, already
	// signed, wrong lifecycle stage, reentrant call.
	CodeConflict Code = "conflict"
	// CodeExpired marks proposals past their validity window.
	CodeExpired Code = "expired"
	// CodeLimitExceeded marks invariant guards: supply cap, daily mint or
	// withdrawal limits, over-committed escrow balance.
	CodeLimitExceeded Code = "limit_exceeded"
	// CodeUnavailable marks paused or temporarily unusable operations.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error carries a code, an operator-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. If err is nil,
// Wrap returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or any error it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for
// uncoded errors so transports always have something to map.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
