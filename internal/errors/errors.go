package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// GatewayError is the structured error type for the gateway.
// It provides rich context for error handling, logging, and the HTTP boundary.
type GatewayError struct {
	// Code is the unique error code (e.g., "ERR_301_ENGINE_TIMEOUT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, Catalog, Engine, ...).
	Category Category

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable remediation hint for the user.
	Suggestion string

	// Output is captured diagnostic output (e.g., pipeline stderr).
	Output string
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with GatewayError.
func (e *GatewayError) Is(target error) bool {
	if t, ok := target.(*GatewayError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *GatewayError) WithDetail(key, value string) *GatewayError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *GatewayError) WithSuggestion(suggestion string) *GatewayError {
	e.Suggestion = suggestion
	return e
}

// WithOutput attaches captured diagnostic output.
// Returns the error for method chaining.
func (e *GatewayError) WithOutput(output string) *GatewayError {
	e.Output = output
	return e
}

// New creates a new GatewayError with the given code and message.
// The category is derived from the code.
func New(code string, message string, cause error) *GatewayError {
	return &GatewayError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a GatewayError from an existing error.
// The error's message becomes the GatewayError message.
func Wrap(code string, err error) *GatewayError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Validation creates a bad-input error for a rejected question.
func Validation(message string) *GatewayError {
	return New(ErrCodeEmptyQuestion, message, nil)
}

// BadRequest creates a bad-input error for a malformed request.
func BadRequest(message string) *GatewayError {
	return New(ErrCodeBadRequest, message, nil)
}

// CatalogMissing creates an error for an absent catalog artifact.
func CatalogMissing(message string, cause error) *GatewayError {
	return New(ErrCodeCatalogMissing, message, cause)
}

// CatalogCorrupt creates an error for a malformed catalog artifact.
func CatalogCorrupt(message string, cause error) *GatewayError {
	return New(ErrCodeCatalogCorrupt, message, cause)
}

// Timeout creates an engine deadline error.
func Timeout(message string, cause error) *GatewayError {
	return New(ErrCodeEngineTimeout, message, cause)
}

// EngineUnavailable creates an error for a missing engine executable.
func EngineUnavailable(message string, cause error) *GatewayError {
	return New(ErrCodeEngineUnavailable, message, cause)
}

// EngineFailure creates an error for an engine process that ran but failed.
func EngineFailure(message string, cause error) *GatewayError {
	return New(ErrCodeEngineFailure, message, cause)
}

// IngestionFailed creates an error for a failed pipeline run.
func IngestionFailed(message string, cause error) *GatewayError {
	return New(ErrCodeIngestionFailed, message, cause)
}

// Conflict creates an error for an ingestion run already in progress.
func Conflict(message string) *GatewayError {
	return New(ErrCodeIngestionConflict, message, nil)
}

// Internal creates a catch-all internal error.
func Internal(message string, cause error) *GatewayError {
	return New(ErrCodeInternal, message, cause)
}

// HTTPStatus maps any error to the HTTP status code the gateway boundary
// reports. Errors that are not GatewayError map to 500.
func HTTPStatus(err error) int {
	var ge *GatewayError
	if stderrors.As(err, &ge) {
		if status, ok := httpStatusByCode[ge.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// Detail returns the human-readable detail message for an error, including
// the suggestion when one is attached.
func Detail(err error) string {
	var ge *GatewayError
	if stderrors.As(err, &ge) {
		if ge.Suggestion != "" {
			return ge.Message + ". " + ge.Suggestion
		}
		return ge.Message
	}
	return err.Error()
}

// Output returns captured diagnostic output attached to the error, if any.
func Output(err error) string {
	var ge *GatewayError
	if stderrors.As(err, &ge) {
		return ge.Output
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
// Re-exported so callers don't need both this package and stdlib errors.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
