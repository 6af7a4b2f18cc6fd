package store

import (
	"gitlab.com/tozd/go/errors"
)

// Error is a failed store operation, classified for the retry policy.
// Transient failures (network timeout, throttling, transient server state)
// are worth retrying; everything else is permanent.
type Error struct {
	Transient bool
	Op        string
	Err       error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as a retryable store failure.
func NewTransient(op string, err error) *Error {
	return &Error{Transient: true, Op: op, Err: err}
}

// NewPermanent wraps err as a non-retryable store failure.
func NewPermanent(op string, err error) *Error {
	return &Error{Transient: false, Op: op, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is a store failure
// worth retrying.
func IsTransient(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}

// IsPermanent reports whether err is a store failure that retrying cannot
// fix. Errors that are not store failures at all report false for both.
func IsPermanent(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return !se.Transient
	}
	return false
}
