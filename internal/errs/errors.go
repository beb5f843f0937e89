// Package errs provides the unified error type used across dbbrowse.
//
// Every subsystem (adapters, persistence, orchestrator, …) wraps its native
// errors into *errs.Error before returning them to callers. Callers use the
// Is* predicates to handle errors without importing driver-specific packages.
//
// Three kinds form the user-facing taxonomy:
//
//	ErrKindConnectionFailed  cannot establish or re-establish a session
//	ErrKindQueryFailed       a submitted statement failed
//	ErrKindTimeout           a statement or close exceeded its deadline
//
// Usage:
//
//	// In an adapter, wrap native errors:
//	return errs.Wrap(errs.ErrKindQueryFailed, "query failed", pgErr).WithCode("42P01", detail)
//
//	// In the orchestrator, check the error kind:
//	if errs.IsConnectionFailed(err) { ... }
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing driver-specific codes.
// All backends (Postgres, MySQL, SQLite, MinIO, local disk) map their native
// errors to one of these kinds.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, no saved connection
	ErrKindConnectionFailed         // cannot reach or authenticate to the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure
	ErrKindConflict                 // operation refused in the current state
	ErrKindThrottled                // request arrived too soon after the previous one
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindConflict:
		return "conflict"
	case ErrKindThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all dbbrowse subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Code    string // driver-specific code (SQLSTATE, MySQL error number or SQLite result code)
	Detail  string // driver-specific detail, for diagnostics
	Cause   error  // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCode attaches a driver code and detail and returns e for chaining.
func (e *Error) WithCode(code, detail string) *Error {
	e.Code = code
	e.Detail = detail
	return e
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Connection is shorthand for a ConnectionError.
func Connection(msg string, cause error) *Error {
	return Wrap(ErrKindConnectionFailed, msg, cause)
}

// Database is shorthand for a DatabaseError.
func Database(msg string, cause error) *Error {
	return Wrap(ErrKindQueryFailed, msg, cause)
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure
// (SQL execution error, storage I/O error, …).
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsConflict reports whether err is an operation refused in the current state.
func IsConflict(err error) bool {
	return KindOf(err) == ErrKindConflict
}

// IsThrottled reports whether err is a "please wait" rejection.
func IsThrottled(err error) bool {
	return KindOf(err) == ErrKindThrottled
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// CodeOf returns the driver code of the first *Error in the chain, if any.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
