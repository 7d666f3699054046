package apperr

import (
	"errors"
	"fmt"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) *Error { return New(CodeInvalidArgument, msg) }

func NotFound(msg string) *Error { return New(CodeNotFound, msg) }

func Forbidden(msg string) *Error { return New(CodePermissionDenied, msg) }

func Unauthorized(msg string) *Error { return New(CodeUnauthenticated, msg) }

func RateLimited(msg string) *Error { return New(CodeRateLimited, msg) }

func Internal(msg string, cause error) *Error {
	return Wrap(CodeInternal, msg, cause)
}

// CodeOf extracts the application code from any error, defaulting to
// UNKNOWN for plain errors.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}
