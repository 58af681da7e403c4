// Package errors provides the coded error type shared by every avatarframe
// component.
//
// Codes let the HTTP layer and the CLI decide user-facing behavior without
// string matching:
//   - CONFIG: malformed or incomplete configuration (fatal at startup)
//   - NO_CANDIDATE: a request carried no source images
//   - DECODE / RESIZE: an image asset could not be read or transformed
//   - FETCH: a source image could not be downloaded
//   - IO: event log or chart file access failed
//   - TIMEOUT: a request ran past its deadline or was canceled
//
// Usage:
//
//	err := errors.New(errors.ErrCodeConfig, "template %d: empty mask_addr", i)
//	if errors.Is(err, errors.ErrCodeConfig) {
//	    // refuse to start
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	ErrCodeConfig       Code = "CONFIG"
	ErrCodeNoCandidate  Code = "NO_CANDIDATE"
	ErrCodeDecode       Code = "DECODE"
	ErrCodeResize       Code = "RESIZE"
	ErrCodeFetch        Code = "FETCH"
	ErrCodeIO           Code = "IO"
	ErrCodeTimeout      Code = "TIMEOUT"
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInternal     Code = "INTERNAL"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates an Error wrapping cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether any *Error in err's chain, outermost to innermost,
// carries code.
func Is(err error, code Code) bool {
	if code == "" {
		return false
	}
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the code of the outermost *Error in err's chain.
// It returns "" when err is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns the message without the code prefix.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
