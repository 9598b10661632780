// Package apperr defines the structured error taxonomy shared by every
// service in the enrichment backend. Errors carry a stable machine code and
// a human-readable message; callers branch on the code, transports map it to
// a status line.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class. Codes are part of the API contract and
// must not be renamed.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeAuthentication      Code = "AUTHENTICATION_ERROR"
	CodeAuthorization       Code = "AUTHORIZATION_ERROR"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"
	CodeRateLimited         Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Error is a coded application error. The zero value is not valid; use the
// constructors below.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// New returns a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf formats a coded error.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Validation returns a VALIDATION_ERROR.
func Validation(message string) *Error { return New(CodeValidation, message) }

// Validationf formats a VALIDATION_ERROR.
func Validationf(format string, args ...any) *Error { return Newf(CodeValidation, format, args...) }

// NotFound returns a NOT_FOUND error.
func NotFound(message string) *Error { return New(CodeNotFound, message) }

// Conflict returns a CONFLICT error.
func Conflict(message string) *Error { return New(CodeConflict, message) }

// InsufficientCredits returns an INSUFFICIENT_CREDITS error.
func InsufficientCredits(message string) *Error { return New(CodeInsufficientCredits, message) }

// Internal wraps an unexpected failure. The message is what callers may see;
// the cause stays internal.
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, cause: cause}
}

// CodeOf extracts the taxonomy code from err. Errors outside the taxonomy
// collapse to INTERNAL_ERROR.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps a taxonomy code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuthentication:
		return http.StatusUnauthorized
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInsufficientCredits:
		return http.StatusPaymentRequired
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Title returns the human summary used by problem+json responses.
func Title(code Code) string {
	switch code {
	case CodeValidation:
		return "Validation Failed"
	case CodeAuthentication:
		return "Unauthorized"
	case CodeAuthorization:
		return "Forbidden"
	case CodeNotFound:
		return "Not Found"
	case CodeConflict:
		return "Conflict"
	case CodeInsufficientCredits:
		return "Insufficient Credits"
	case CodeRateLimited:
		return "Rate Limit Exceeded"
	default:
		return "Internal Server Error"
	}
}
