// Package apperr defines the error taxonomy shared by the scheduler, the
// job queue, the dispatcher and the aggregation engine. Every error that
// crosses a component boundary should be an *Error so callers can decide
// whether to retry without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes an application error.
type Kind string

const (
	// KindValidation marks bad input. Rejected synchronously, never retried.
	KindValidation Kind = "validation"
	// KindTransientDependency marks a store or transport that is temporarily
	// unavailable. Retried with backoff up to the job's max attempts.
	KindTransientDependency Kind = "transient_dependency"
	// KindPermanentRecipient marks a recipient that can never be served
	// (unknown employee, invalid address). The job is abandoned at once.
	KindPermanentRecipient Kind = "permanent_recipient"
	// KindConcurrencyConflict marks an optimistic version mismatch.
	KindConcurrencyConflict Kind = "concurrency_conflict"
	// KindNotFound marks a missing record.
	KindNotFound Kind = "not_found"
	// KindInternal is everything else.
	KindInternal Kind = "internal"
)

// Error is the standard error type. Err is the underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an *Error of the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error {
	return New(KindValidation, message, nil)
}

func Transient(message string, err error) *Error {
	return New(KindTransientDependency, message, err)
}

func PermanentRecipient(message string, err error) *Error {
	return New(KindPermanentRecipient, message, err)
}

func Conflict(message string) *Error {
	return New(KindConcurrencyConflict, message, nil)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether a failed job should be attempted again.
// Unclassified errors are treated as transient: a job that keeps failing
// still terminates once it reaches its max attempts.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindPermanentRecipient, KindNotFound:
		return false
	default:
		return true
	}
}
