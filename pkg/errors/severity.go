// Package errors provides severity-aware error types.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Error is a structured error with context.
type Error struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Field       string   `json:"field,omitempty"`
	Recoverable bool     `json:"recoverable"`
	Err         error    `json:"-"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field: %s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeInvalidQuery        = "INVALID_QUERY"
	ErrCodeQueryTooLong        = "QUERY_TOO_LONG"
	ErrCodeUnsafeQuery         = "UNSAFE_QUERY"
	ErrCodeInvalidQuantity     = "INVALID_QUANTITY"
	ErrCodeInvalidPrice        = "INVALID_PRICE"
	ErrCodeInvalidWeight       = "INVALID_WEIGHT"
	ErrCodeInvalidCategory     = "INVALID_CATEGORY"
	ErrCodeInvalidPolicy       = "INVALID_POLICY"
	ErrCodeBatchTooLarge       = "BATCH_TOO_LARGE"
	ErrCodeRegistryInvalid     = "REGISTRY_INVALID"
	ErrCodeRegistryUnavailable = "REGISTRY_UNAVAILABLE"
	ErrCodeAnalyticsFailed     = "ANALYTICS_FAILED"
)

// NewValidationError creates an input contract violation for a request field.
func NewValidationError(code, field, message string) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Field:       field,
		Recoverable: false,
	}
}

// NewRegistryError creates a fatal configuration error for the category registry.
func NewRegistryError(code, message string, err error) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		Severity:    SeverityFatal,
		Recoverable: false,
		Err:         err,
	}
}

// NewAnalyticsError wraps a sink failure. Analytics never fails a request.
func NewAnalyticsError(op string, err error) *Error {
	return &Error{
		Code:        ErrCodeAnalyticsFailed,
		Message:     fmt.Sprintf("analytics %s failed", op),
		Severity:    SeverityWarning,
		Recoverable: true,
		Err:         err,
	}
}

// AsError extracts a structured error from a chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsValidation reports whether err is an input contract violation.
func IsValidation(err error) bool {
	e, ok := AsError(err)
	return ok && e.Severity == SeverityError && e.Field != ""
}
