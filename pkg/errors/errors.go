// Package errors provides standardized error types for the dispatch engine.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Error codes for dispatch and backend failures.
const (
	CodeInvalidSelection = "INVALID_SELECTION"
	CodeInvalidQuery     = "INVALID_QUERY"
	CodeQueryFailed      = "QUERY_FAILED"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
	CodeCanceled         = "CANCELED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInternal         = "INTERNAL_ERROR"
)

// DispatchError represents a dispatch-engine error with code, message, and
// optional cause.
type DispatchError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *DispatchError) Is(target error) bool {
	t, ok := target.(*DispatchError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Common errors.
var (
	ErrEmptySelection   = &DispatchError{Code: CodeInvalidSelection, Message: "selection resolves to no backends"}
	ErrEmptyQuery       = &DispatchError{Code: CodeInvalidQuery, Message: "query is empty"}
	ErrConnectionFailed = &DispatchError{Code: CodeConnectionFailed, Message: "backend connection failed"}
	ErrQueryTimeout     = &DispatchError{Code: CodeDeadlineExceeded, Message: "query execution timeout"}
	ErrCanceled         = &DispatchError{Code: CodeCanceled, Message: "query canceled"}
)

// New creates a new DispatchError with the given code and message.
func New(code, message string) *DispatchError {
	return &DispatchError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new DispatchError with a formatted message.
func Newf(code, format string, args ...interface{}) *DispatchError {
	return &DispatchError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a DispatchError.
func Wrap(err error, code, message string) *DispatchError {
	if err == nil {
		return nil
	}
	return &DispatchError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *DispatchError {
	if err == nil {
		return nil
	}
	return &DispatchError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Code extracts the dispatch error code, or CodeInternal for foreign errors.
func Code(err error) string {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsCallerError reports whether the error is an invocation-level misuse that
// must propagate as a hard failure instead of a per-backend outcome.
func IsCallerError(err error) bool {
	switch Code(err) {
	case CodeInvalidSelection, CodeInvalidQuery:
		return true
	}
	return false
}

// transientCodes are the connectivity/timeout-class codes worth retrying.
var transientCodes = map[string]bool{
	CodeConnectionFailed: true,
	CodeUnavailable:      true,
	CodeDeadlineExceeded: true,
}

// IsTransientCode reports whether the given code is retry-worthy.
func IsTransientCode(code string) bool {
	return transientCodes[code]
}

// IsTransient classifies an error as retry-worthy. Coded errors are judged by
// code; raw driver errors by well-known connectivity signals. Cancellation is
// never transient: the caller gave up.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var de *DispatchError
	if errors.As(err, &de) {
		if transientCodes[de.Code] {
			return true
		}
		if de.Cause == nil {
			return false
		}
		err = de.Cause
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return hasTransientMessage(err.Error())
}

// hasTransientMessage is a last-resort textual check for drivers that return
// flat error strings.
func hasTransientMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"too many connections",
		"server is not ready",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Classify maps a raw execution error onto a dispatch error code.
// Cancellation wins over any wrapping code so a cancelled branch is recorded
// as cancelled, then an existing code is preserved.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return CodeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeDeadlineExceeded
	}
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code
	}
	if IsTransient(err) {
		return CodeConnectionFailed
	}
	return CodeQueryFailed
}
