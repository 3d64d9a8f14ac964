// Package apperrors defines the closed set of tagged error variants used
// across the data engine (SPEC_FULL.md §7). Each kind carries an HTTP
// status and an optional structured Details payload; callers type-assert
// or use errors.As against *Error rather than testing error strings.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a closed tag identifying the category of failure.
type Kind string

const (
	KindInvalidInput   Kind = "INVALID_INPUT"
	KindUnauthorized   Kind = "UNAUTHORIZED"
	KindPodForbidden   Kind = "POD_FORBIDDEN"
	KindPodMismatch    Kind = "POD_MISMATCH"
	KindForbidden      Kind = "FORBIDDEN"
	KindPodNotFound    Kind = "POD_NOT_FOUND"
	KindStreamNotFound Kind = "STREAM_NOT_FOUND"
	KindRecordNotFound Kind = "RECORD_NOT_FOUND"
	KindPodExists      Kind = "POD_EXISTS"
	KindNameConflict   Kind = "NAME_CONFLICT"
	KindValidationErr  Kind = "VALIDATION_ERROR"
	KindRateLimited    Kind = "RATE_LIMIT_EXCEEDED"
	KindDatabaseErr    Kind = "DATABASE_ERROR"
	KindStorageErr     Kind = "STORAGE_ERROR"
	KindInternal       Kind = "INTERNAL_ERROR"
)

var statusByKind = map[Kind]int{
	KindInvalidInput:   http.StatusBadRequest,
	KindUnauthorized:   http.StatusUnauthorized,
	KindPodForbidden:   http.StatusForbidden,
	KindPodMismatch:    http.StatusForbidden,
	KindForbidden:      http.StatusForbidden,
	KindPodNotFound:    http.StatusNotFound,
	KindStreamNotFound: http.StatusNotFound,
	KindRecordNotFound: http.StatusNotFound,
	KindPodExists:      http.StatusConflict,
	KindNameConflict:   http.StatusConflict,
	KindValidationErr:  http.StatusUnprocessableEntity,
	KindRateLimited:    http.StatusTooManyRequests,
	KindDatabaseErr:    http.StatusInternalServerError,
	KindStorageErr:     http.StatusInternalServerError,
	KindInternal:       http.StatusInternalServerError,
}

// Error is the concrete tagged error type. It wraps an optional cause for
// log context without leaking it into client-facing messages.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status code for this error's kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Recoverable reports whether the error kind represents a local
// validation/permission decision (true) rather than a fatal I/O failure
// (false), per SPEC_FULL.md §7's propagation rules.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindDatabaseErr, KindStorageErr, KindInternal:
		return false
	default:
		return true
	}
}

// New builds a tagged error with no details or cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a tagged error around a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches structured validation/rate-limit details.
func (e *Error) WithDetails(d map[string]any) *Error {
	e.Details = d
	return e
}

// As is a convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// KindInternal otherwise — used at the HTTP boundary so an un-tagged
// error never leaks past a 500.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
