// Package domainerrors provides coded errors that travel from services to the
// request boundary. Services attach a Code describing how the caller should
// interpret the failure; transport maps codes onto HTTP statuses in one place.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for boundary handling.
type Code string

const (
	// CodeValidation marks malformed input the caller can fix. No state changed.
	CodeValidation Code = "validation"
	// CodeBadRequest marks a structurally invalid request (bad JSON, bad ID).
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized marks a missing or unresolvable caller identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks a caller whose role does not permit the operation.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks a missing target entity.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a write that lost to a concurrent competitor.
	CodeConflict Code = "conflict"
	// CodePrecondition marks a target that exists but is not presently eligible.
	CodePrecondition Code = "precondition_failed"
	// CodeChallenge marks an OTP challenge failure (no pending, mismatch, expired).
	CodeChallenge Code = "challenge_failed"
	// CodeUnavailable marks a dependency that is temporarily down.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks a persistence or programming failure. Callers get a
	// generic message; detail stays in internal logs.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It wraps an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors so nothing leaks to callers unclassified.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-safe message for err. Uncoded errors collapse
// to a generic message.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if de.Code == CodeInternal {
			return "internal error"
		}
		return de.Message
	}
	return "internal error"
}
