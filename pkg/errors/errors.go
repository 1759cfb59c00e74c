// Package errors augments the standard errors package with sentinel
// errors that may wrap a cause without losing their identity.
//
// Sentinels are declared once with New and never mutated: Wrap returns
// a fresh error which still satisfies errors.Is(wrapped, sentinel).
package errors

import (
	stderr "errors"
	"fmt"
)

var _ error = New("")

// New sentinel Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error is a sentinel error, optionally wrapping a cause.
type Error struct {
	msg      string
	err      error
	sentinel *Error
}

// Error message, followed by the cause when there is one
func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a nested error. The receiver is left untouched.
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, err: err, sentinel: e.origin()}
}

// Wrapf wraps a formatted message as the cause
func (e *Error) Wrapf(format string, args ...interface{}) *Error {
	return e.Wrap(fmt.Errorf(format, args...))
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || e.origin() == t.origin()
}

func (e *Error) origin() *Error {
	if e.sentinel != nil {
		return e.sentinel
	}
	return e
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
