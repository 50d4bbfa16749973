// Package domainerrors defines the coded errors services return and the HTTP
// layer translates. Codes are stable API surface; messages are for humans.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. Every service-level error carries one.
type Code string

const (
	// CodeInvalidInput covers structurally invalid requests: missing fields,
	// malformed values, self-targeting operations.
	CodeInvalidInput Code = "invalid_input"

	// CodeUnauthorized covers missing or unverifiable credentials.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden covers authenticated actors lacking the role or ownership
	// relationship an operation requires.
	CodeForbidden Code = "forbidden"

	// CodeNotFound covers references to entities that do not exist or are
	// soft-deleted from the caller's point of view.
	CodeNotFound Code = "not_found"

	// CodeConflict covers operations blocked by existing state, such as a
	// duplicate pending consent or an already-registered email.
	CodeConflict Code = "conflict"

	// CodeInvalidState covers transitions that are illegal from the entity's
	// current status.
	CodeInvalidState Code = "invalid_state"

	// CodeUnavailable covers upstream dependency failures (blob storage,
	// notification delivery) that should be retried by the caller.
	CodeUnavailable Code = "unavailable"

	// CodeTimeout covers operations aborted by deadline or cancellation.
	CodeTimeout Code = "timeout"

	// CodeInternal covers unexpected failures. Details are logged, never
	// surfaced to clients.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. It optionally wraps an underlying cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a human-readable message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable via errors.Unwrap for logging; clients only ever see the message.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in a service.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the human-readable message from err. Uncoded errors map
// to a generic message so storage-layer text never reaches clients.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal server error"
}

// ToHTTPStatus maps a code to its HTTP response status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidState:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
