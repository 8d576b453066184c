// Package dErrors provides coded domain errors. Services return these so the
// HTTP boundary can translate them into the wire envelope without inspecting
// error strings. Infra layers return pkg/platform/sentinel errors instead and
// services wrap them here.
package dErrors

import (
	"errors"
	"fmt"
)

// Code identifies an error class on the wire.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeInvalidRealm     Code = "INVALID_REALM"
	CodeInvalidResolver  Code = "INVALID_RESOLVER"
	CodeInvalidEvidence  Code = "INVALID_EVIDENCE"
	CodeInvalidParent    Code = "INVALID_PARENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyExists    Code = "ALREADY_EXISTS"
	CodeAlreadyRevoked   Code = "ALREADY_REVOKED"
	CodeResolverNotFound Code = "RESOLVER_NOT_FOUND"
	CodeResolverTimeout  Code = "RESOLVER_TIMEOUT"
	CodeChainIntegrity   Code = "CHAIN_INTEGRITY"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// Error is a coded domain error with optional structured details.
type Error struct {
	Code    Code
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
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

// WithDetails returns a copy carrying structured details (e.g. per-field
// evidence validation errors).
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// AsError extracts the coded error if present.
func AsError(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}
