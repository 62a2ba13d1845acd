package errors

import (
	"fmt"
)

// KotobaError is the structured error type for the retrieval pipeline.
// It carries the context needed for error handling, logging, and the
// degraded-completeness reporting of partial retrieval failures.
type KotobaError struct {
	// Code is the unique error code (e.g., "ERR_302_SOURCE_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *KotobaError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KotobaError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works across wrapping.
func (e *KotobaError) Is(target error) bool {
	if t, ok := target.(*KotobaError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *KotobaError) WithDetail(key, value string) *KotobaError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *KotobaError) WithSuggestion(suggestion string) *KotobaError {
	e.Suggestion = suggestion
	return e
}

// New creates a new KotobaError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *KotobaError {
	return &KotobaError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KotobaError from an existing error.
func Wrap(code string, err error) *KotobaError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *KotobaError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// SourceError creates a retrieval source failure. Source errors are
// retryable and never abort the whole pipeline.
func SourceError(source string, cause error) *KotobaError {
	return New(ErrCodeSourceUnavailable,
		fmt.Sprintf("retrieval source %q unavailable", source), cause).
		WithDetail("source", source)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *KotobaError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *KotobaError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ke, ok := err.(*KotobaError); ok {
		return ke.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ke, ok := err.(*KotobaError); ok {
		return ke.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a KotobaError.
// Returns empty string if not a KotobaError.
func GetCode(err error) string {
	if ke, ok := err.(*KotobaError); ok {
		return ke.Code
	}
	return ""
}

// GetCategory extracts the category from a KotobaError.
func GetCategory(err error) Category {
	if ke, ok := err.(*KotobaError); ok {
		return ke.Category
	}
	return ""
}
