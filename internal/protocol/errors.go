// Package protocol defines the wire protocol shared by the daemon and its
// clients: message envelopes, event names, and the error taxonomy.
package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a command failure.
type ErrorCode string

const (
	// CodeUnknownCommand indicates an unrecognized category or action.
	CodeUnknownCommand ErrorCode = "UnknownCommand"
	// CodeMissingParameter indicates a required field was absent.
	CodeMissingParameter ErrorCode = "MissingParameter"
	// CodeNotFound indicates a session/task/role/workflow id does not exist.
	CodeNotFound ErrorCode = "NotFound"
	// CodeInvalidState indicates the operation is not legal for the current status.
	CodeInvalidState ErrorCode = "InvalidState"
	// CodeUnmetDependency indicates task dependencies are incomplete.
	CodeUnmetDependency ErrorCode = "UnmetDependency"
	// CodeUnavailable indicates an optional subsystem is not connected.
	CodeUnavailable ErrorCode = "Unavailable"
	// CodeTimeout indicates the request exceeded its round-trip budget.
	CodeTimeout ErrorCode = "Timeout"
	// CodeConflict indicates a duplicate id on create.
	CodeConflict ErrorCode = "Conflict"
)

// Error is a typed command failure carried across the router boundary.
// It never crashes the daemon; the router converts it to a failed response.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a typed protocol error.
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// UnknownCommandf builds an UnknownCommand error.
func UnknownCommandf(format string, args ...interface{}) *Error {
	return Errorf(CodeUnknownCommand, format, args...)
}

// MissingParameter builds a MissingParameter error naming the field.
func MissingParameter(field string) *Error {
	return Errorf(CodeMissingParameter, "missing required parameter %q", field)
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...interface{}) *Error {
	return Errorf(CodeNotFound, format, args...)
}

// InvalidStatef builds an InvalidState error.
func InvalidStatef(format string, args ...interface{}) *Error {
	return Errorf(CodeInvalidState, format, args...)
}

// UnmetDependencyf builds an UnmetDependency error.
func UnmetDependencyf(format string, args ...interface{}) *Error {
	return Errorf(CodeUnmetDependency, format, args...)
}

// Unavailablef builds an Unavailable error.
func Unavailablef(format string, args ...interface{}) *Error {
	return Errorf(CodeUnavailable, format, args...)
}

// Conflictf builds a Conflict error.
func Conflictf(format string, args ...interface{}) *Error {
	return Errorf(CodeConflict, format, args...)
}

// CodeOf extracts the protocol error code from err. Untyped errors map to
// InvalidState so every failure still reaches the client classified.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInvalidState
}
