// Package errors provides a structured error type with wrapping and metadata
package errors

// Always import the project errors package as perr (platform/errors)

import (
	stderrs "errors"
	"fmt"
)

// ErrorCode defines supported error codes used across services
// Values are stable for log compatibility; add sparingly
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodePanic is for recovered panics
	ErrorCodePanic

	// ErrorCodeData is for required upstream fields that are missing or empty
	ErrorCodeData

	// ErrorCodeParsing is for malformed JSON or malformed date/datetime values
	ErrorCodeParsing

	// ErrorCodeNetwork is for per-request transport failures and API-level errors
	ErrorCodeNetwork

	// ErrorCodeSSL is for TLS negotiation and certificate failures
	ErrorCodeSSL

	// ErrorCodeTimeout is for per-request deadline expiry
	ErrorCodeTimeout

	// ErrorCodeTranscript is for AI/LY extraction that came back empty or invalid
	ErrorCodeTranscript

	// ErrorCodeDB is for database commit or query failures
	ErrorCodeDB

	// ErrorCodeConfig is for invalid environment at startup; fatal before any work
	ErrorCodeConfig

	// ErrorCodeNotFound is for missing resources
	ErrorCodeNotFound

	// ErrorCodeInterrupted is for externally cancelled runs
	ErrorCodeInterrupted
)

// ErrNotFound is a sentinel not found error for convenience
var ErrNotFound = New(ErrorCodeNotFound, "not found")

// Error is the structured error type with wrapping and metadata
// msg is human/developer facing; code is machine facing
// field is optional (offending config key or upstream field); op is optional operation tag
// orig is the wrapped cause
type Error struct {
	orig  error
	msg   string
	code  ErrorCode
	field string
	op    string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending field, if any
func (e *Error) Field() string { return e.field }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// Root returns the deepest wrapped cause
func Root(err error) error {
	for err != nil {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
	return nil
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// ExitCode maps an error to a process exit code: nil 0, interrupted 130, else 1
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsCode(err, ErrorCodeInterrupted) || stderrs.Is(err, errCanceled(err)):
		return 130
	default:
		return 1
	}
}

// errCanceled lets ExitCode treat a bare context.Canceled chain as an interrupt
// without importing context here
func errCanceled(err error) error {
	if Root(err) != nil && Root(err).Error() == "context canceled" {
		return Root(err)
	}
	return nil
}

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Mutators (copy-on-write)

// WithField attaches a field to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithField(err error, field string) error {
	if e, ok := As(err); ok {
		c := *e
		c.field = field
		return &c
	}
	return err
}

// WithOp attaches an operation label to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// Constructors

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WrapIf wraps only when err != nil (helper for 1-liners)
func WrapIf(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, msg)
}

// Sugar

// Dataf returns a data error (missing/empty required upstream field)
func Dataf(format string, a ...any) error { return Newf(ErrorCodeData, format, a...) }

// Parsingf returns a parsing error
func Parsingf(format string, a ...any) error { return Newf(ErrorCodeParsing, format, a...) }

// Networkf returns a network error
func Networkf(format string, a ...any) error { return Newf(ErrorCodeNetwork, format, a...) }

// SSLf returns a TLS error
func SSLf(format string, a ...any) error { return Newf(ErrorCodeSSL, format, a...) }

// Timeoutf returns a timeout error
func Timeoutf(format string, a ...any) error { return Newf(ErrorCodeTimeout, format, a...) }

// Transcriptf returns a transcript extraction error
func Transcriptf(format string, a ...any) error { return Newf(ErrorCodeTranscript, format, a...) }

// DBf returns a general database error
func DBf(format string, a ...any) error { return Newf(ErrorCodeDB, format, a...) }

// Configf returns a configuration error
func Configf(format string, a ...any) error { return Newf(ErrorCodeConfig, format, a...) }

// NotFoundf returns a not found error
func NotFoundf(format string, a ...any) error { return Newf(ErrorCodeNotFound, format, a...) }

// Interruptedf returns an interrupted error
func Interruptedf(format string, a ...any) error { return Newf(ErrorCodeInterrupted, format, a...) }

// Internalf returns a generic internal error
func Internalf(format string, a ...any) error { return Newf(ErrorCodeUnknown, format, a...) }

// Transient reports whether a retry of the same request may succeed
func Transient(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeNetwork, ErrorCodeTimeout:
		return true
	}
	return IsRetryableDB(err)
}
