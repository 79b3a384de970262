package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorType represents the kinds of failure seen while driving the EPMA UI
type ErrorType string

const (
	ErrorTypeTimeout          ErrorType = "timeout"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeStale            ErrorType = "stale"
	ErrorTypeClickIntercepted ErrorType = "click_intercepted"
	ErrorTypeAuth             ErrorType = "auth"
	ErrorTypeInput            ErrorType = "input"
	ErrorTypeBrowser          ErrorType = "browser"
	ErrorTypeUnknown          ErrorType = "unknown"
)

// Error is an automation error with type information
type Error struct {
	Type    ErrorType
	Op      string
	Locator string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Locator != "" {
		return fmt.Sprintf("%s error during %s [%s]: %s", e.Type, e.Op, e.Locator, msg)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s error during %s: %s", e.Type, e.Op, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error with a message
func New(t ErrorType, op, message string) *Error {
	return &Error{Type: t, Op: op, Message: message}
}

// Wrap creates a typed error around an underlying cause
func Wrap(t ErrorType, op, locator string, err error) *Error {
	return &Error{Type: t, Op: op, Locator: locator, Err: err}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown when err is not typed.
// Context deadlines are reported as timeouts.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	return ErrorTypeUnknown
}

// IsTimeout reports whether err is a wait that ran out of time
func IsTimeout(err error) bool {
	return TypeOf(err) == ErrorTypeTimeout
}

// IsStale reports whether err refers to an element detached from the page
func IsStale(err error) bool {
	return TypeOf(err) == ErrorTypeStale
}

// IsClickIntercepted reports whether another element received the click
func IsClickIntercepted(err error) bool {
	return TypeOf(err) == ErrorTypeClickIntercepted
}

// IsNotFound reports whether an element did not exist
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsRetryable reports whether a failure of this type is worth another
// attempt. Timeouts are not: outside note suppression a timeout abandons
// the patient, and the suppression retry opts into them itself.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeStale, ErrorTypeClickIntercepted:
		return true
	default:
		return false
	}
}
