// Package apperr defines the error kinds surfaced by the booking and folio core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding how to react to it.
type Kind string

const (
	// KindValidation marks input rejected before any mutation; safe to retry after correction.
	KindValidation Kind = "validation"
	// KindConflict marks a request that clashes with current state and needs user resolution.
	KindConflict Kind = "conflict"
	// KindConsistency marks cross-entity drift found and repaired by reconciliation.
	KindConsistency Kind = "consistency"
	// KindNotFound marks an unknown id, or one outside the caller's property.
	KindNotFound Kind = "not_found"
)

// Kind sentinels, matched by errors.Is against any *Error of that kind.
var (
	ErrValidation  = errors.New("validation error")
	ErrConflict    = errors.New("conflict")
	ErrConsistency = errors.New("consistency error")
	ErrNotFound    = errors.New("not found")
)

// Specific invariant violations, carried as the cause of a conflict.
var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrRoomUnavailable        = errors.New("room unavailable")
	ErrFolioClosed            = errors.New("folio is closed")
	ErrAlreadyVoided          = errors.New("item already voided")
	ErrDuplicatePayment       = errors.New("duplicate payment reference")
	ErrAlreadyExists          = errors.New("already exists")
)

var kindSentinels = map[Kind]error{
	KindValidation:  ErrValidation,
	KindConflict:    ErrConflict,
	KindConsistency: ErrConsistency,
	KindNotFound:    ErrNotFound,
}

// Error is the error type returned by every core operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newError(kind Kind, op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Validation returns a KindValidation error.
func Validation(op, format string, args ...any) *Error {
	return newError(KindValidation, op, nil, format, args...)
}

// NotFound returns a KindNotFound error.
func NotFound(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, nil, format, args...)
}

// Conflict returns a KindConflict error caused by one of the invariant sentinels.
func Conflict(op string, cause error, format string, args ...any) *Error {
	return newError(KindConflict, op, cause, format, args...)
}

// Consistency returns a KindConsistency error.
func Consistency(op string, cause error, format string, args ...any) *Error {
	return newError(KindConsistency, op, cause, format, args...)
}

// Annotate returns err with its message prefixed, keeping its kind and
// cause. Errors that are not an *Error come back unchanged.
func Annotate(op string, err error, format string, args ...any) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return &Error{Kind: e.Kind, Op: op, Message: fmt.Sprintf(format, args...) + ": " + msg, Err: e.Err}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the user-facing message of err without the operation prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
