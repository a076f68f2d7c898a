package types

import "fmt"

// ErrorCode classifies a generation failure for retry decisions.
type ErrorCode string

// Backend error codes
const (
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrTransient      ErrorCode = "TRANSIENT"
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrQuotaExhausted ErrorCode = "QUOTA_EXHAUSTED"
	ErrUnknown        ErrorCode = "UNKNOWN"
)

// Synthetic error codes (never produced by a backend)
const (
	ErrCancelled ErrorCode = "CANCELLED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
// Retryable is derived from the code; use WithRetryable to override.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: codeRetryable(code)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// codeRetryable is the default retryability per code. Unknown errors are
// retried so transient-but-unrecognized failures are not silently dropped.
func codeRetryable(code ErrorCode) bool {
	switch code {
	case ErrRateLimited, ErrTransient, ErrUnknown:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
// Unclassified errors report ErrUnknown.
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ErrUnknown
}
