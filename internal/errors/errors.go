// SPDX-License-Identifier: AGPL-3.0-only
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies an error for programmatic handling
type Code string

// Error codes
const (
	// CodeNotFound indicates a requested entity does not exist
	CodeNotFound Code = "not_found"
	// CodeInvalidInput indicates a malformed or missing parameter
	CodeInvalidInput Code = "invalid_input"
	// CodeAlreadyExists indicates a uniqueness conflict
	CodeAlreadyExists Code = "already_exists"
	// CodeInternal indicates an unexpected internal failure
	CodeInternal Code = "internal"
	// CodeAlreadyRunning indicates a provider process is already started
	CodeAlreadyRunning Code = "already_running"
	// CodeNotReady indicates a provider has no running, ready process
	CodeNotReady Code = "not_ready"
	// CodeTimeout indicates a request/response exchange exceeded its deadline
	CodeTimeout Code = "timeout"
	// CodeBackend indicates the backend process reported an error on stderr
	CodeBackend Code = "backend"
	// CodeNoActiveProvider indicates no provider has been activated yet
	CodeNoActiveProvider Code = "no_active_provider"
	// CodeUnknownProvider indicates a provider name that is not registered
	CodeUnknownProvider Code = "unknown_provider"
)

// Error is a coded error carried across package boundaries
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound creates a not-found error for an entity
func NotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// InvalidInput creates an invalid-input error
func InvalidInput(msg string) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}

// AlreadyExists creates a uniqueness-conflict error for an entity
func AlreadyExists(kind, id string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf("%s %s already exists", kind, id)}
}

// Internal wraps an unexpected internal failure
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// AlreadyRunning creates an error for starting a provider that already has a process
func AlreadyRunning(provider string) *Error {
	return &Error{Code: CodeAlreadyRunning, Message: fmt.Sprintf("provider %s is already running", provider)}
}

// NotReady creates an error for sending to a provider with no ready process
func NotReady(provider string) *Error {
	return &Error{Code: CodeNotReady, Message: fmt.Sprintf("provider %s is not ready", provider)}
}

// Timeout creates an error naming the elapsed bound of a timed-out exchange
func Timeout(elapsed time.Duration) *Error {
	return &Error{Code: CodeTimeout, Message: fmt.Sprintf("no response within %s", elapsed)}
}

// Backend creates an error carrying text the backend wrote to its error pipe
func Backend(stderr string) *Error {
	return &Error{Code: CodeBackend, Message: fmt.Sprintf("backend error: %s", stderr)}
}

// NoActiveProvider creates an error for operations that require an activated provider
func NoActiveProvider() *Error {
	return &Error{Code: CodeNoActiveProvider, Message: "no active provider"}
}

// UnknownProvider creates an error for a provider name that is not registered
func UnknownProvider(name string) *Error {
	return &Error{Code: CodeUnknownProvider, Message: fmt.Sprintf("unknown provider %s", name)}
}

// HasCode reports whether err is (or wraps) an *Error with the given code
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsTimeout reports whether err is a timeout error
func IsTimeout(err error) bool { return HasCode(err, CodeTimeout) }

// IsNotReady reports whether err is a not-ready error
func IsNotReady(err error) bool { return HasCode(err, CodeNotReady) }
