package errors

import (
	"fmt"
)

// IndexError is the structured error type for roomsearch.
// Every failure surfaced by the index, writer, reader and query engine is an
// IndexError so callers can branch on Code or Category.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_201_SCHEMA_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Construction, Schema, Write, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates the caller may repeat the operation.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Category sentinels. They match any IndexError of the same category:
//
//	if errors.Is(err, rserrors.ErrSchema) { ... }
var (
	ErrConstruction = &IndexError{Category: CategoryConstruction}
	ErrSchema       = &IndexError{Category: CategorySchema}
	ErrWrite        = &IndexError{Category: CategoryWrite}
	ErrQuery        = &IndexError{Category: CategoryQuery}
	ErrConsistency  = &IndexError{Category: CategoryConsistency}
)

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Code == "" {
		return string(e.Category) + " error"
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is matches by code, or by category when the target is a category sentinel.
func (e *IndexError) Is(target error) bool {
	t, ok := target.(*IndexError)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Category != "" && e.Category == t.Category
	}
	return e.Code == t.Code
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *IndexError) WithSuggestion(suggestion string) *IndexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code string, format string, args ...any) *IndexError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an IndexError from an existing error.
// An error that already is an IndexError is returned unchanged.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	if ie, ok := err.(*IndexError); ok {
		return ie
	}
	return New(code, err.Error(), err)
}

// Wrapf wraps err under code with a formatted context message.
func Wrapf(code string, err error, format string, args ...any) *IndexError {
	if err == nil {
		return nil
	}
	if ie, ok := err.(*IndexError); ok {
		return ie
	}
	return New(code, fmt.Sprintf(format, args...)+": "+err.Error(), err)
}

// SchemaMismatch reports a field the schema requires but the index lacks.
func SchemaMismatch(field string) *IndexError {
	return Newf(ErrCodeSchemaMismatch, "index schema is missing required field %q", field).
		WithDetail("field", field).
		WithSuggestion("the index was built with an incompatible schema; rebuild it")
}

// UnknownField reports a query reference to a field the schema does not define.
func UnknownField(field string) *IndexError {
	return Newf(ErrCodeUnknownField, "query references unknown field %q", field).
		WithDetail("field", field)
}

// Consistency reports stored data that contradicts the schema.
func Consistency(message string) *IndexError {
	return New(ErrCodeConsistency, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an IndexError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ie, ok := err.(*IndexError); ok {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ie, ok := err.(*IndexError); ok {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an IndexError.
// Returns empty string if not an IndexError.
func GetCode(err error) string {
	if ie, ok := err.(*IndexError); ok {
		return ie.Code
	}
	return ""
}

// GetCategory extracts the category from an IndexError.
// Returns empty string if not an IndexError.
func GetCategory(err error) Category {
	if ie, ok := err.(*IndexError); ok {
		return ie.Category
	}
	return ""
}
