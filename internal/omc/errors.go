package omc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTransient marks connection-establishment failures that are worth
// retrying: the compiler did not publish its endpoint in time, or the
// endpoint refused the connection. Match it with errors.Is.
var ErrTransient = errors.New("transient connection failure")

// ErrSessionClosed is returned for calls on a closed session.
var ErrSessionClosed = errors.New("session is closed")

// Error is the single failure kind surfaced by engine operations.
//
// Message is a human-readable description of what went wrong. Diagnostics
// holds the text the compiler reported through getErrorString() right after
// the failing call; it may be empty. Callers tell failure scenarios apart by
// the message.
type Error struct {
	Message     string
	Diagnostics string
}

// NewError creates an Error with the given message and diagnostics.
func NewError(message, diagnostics string) *Error {
	return &Error{Message: message, Diagnostics: diagnostics}
}

// Errorf creates an Error without diagnostics from a format string.
func Errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	diag := strings.TrimSpace(e.Diagnostics)
	if diag == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, diag)
}

// AsError returns the engine Error wrapped in err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
