// Package errors provides structured error handling for roomsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Construction errors (create, open, lock, config)
//   - 2XX: Schema errors
//   - 3XX: Write errors (document rejected, commit)
//   - 4XX: Query errors (syntax, unknown field, execution)
//   - 5XX: Consistency errors (stored data disagrees with the schema)
//   - 9XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConstruction indicates path, open, create or lock failures.
	CategoryConstruction Category = "CONSTRUCTION"
	// CategorySchema indicates a required field is missing from an index.
	CategorySchema Category = "SCHEMA"
	// CategoryWrite indicates a rejected document or failed commit.
	CategoryWrite Category = "WRITE"
	// CategoryQuery indicates malformed query syntax or a failed search.
	CategoryQuery Category = "QUERY"
	// CategoryConsistency indicates stored values that contradict the schema.
	CategoryConsistency Category = "CONSISTENCY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Construction errors (100-199)
	ErrCodeIndexCreate    = "ERR_101_INDEX_CREATE"
	ErrCodeIndexOpen      = "ERR_102_INDEX_OPEN"
	ErrCodeIndexExists    = "ERR_103_INDEX_EXISTS"
	ErrCodeIndexNotFound  = "ERR_104_INDEX_NOT_FOUND"
	ErrCodeIndexLocked    = "ERR_105_INDEX_LOCKED"
	ErrCodeConfigInvalid  = "ERR_106_CONFIG_INVALID"
	ErrCodeCatalogFailure = "ERR_107_CATALOG_FAILURE"

	// Schema errors (200-299)
	ErrCodeSchemaMismatch = "ERR_201_SCHEMA_MISMATCH"

	// Write errors (300-399)
	ErrCodeDocumentRejected = "ERR_301_DOCUMENT_REJECTED"
	ErrCodeCommitFailed     = "ERR_302_COMMIT_FAILED"
	ErrCodeWriterClosed     = "ERR_303_WRITER_CLOSED"

	// Query errors (400-499)
	ErrCodeInvalidQuery = "ERR_401_INVALID_QUERY"
	ErrCodeUnknownField = "ERR_402_UNKNOWN_FIELD"
	ErrCodeQueryTooLong = "ERR_403_QUERY_TOO_LONG"
	ErrCodeSearchFailed = "ERR_404_SEARCH_FAILED"
	ErrCodeReloadFailed = "ERR_405_RELOAD_FAILED"
	ErrCodeReaderClosed = "ERR_406_READER_CLOSED"

	// Consistency errors (500-599)
	ErrCodeConsistency = "ERR_501_CONSISTENCY"

	// Internal errors (900-999)
	ErrCodeInternal = "ERR_901_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_INDEX_CREATE")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConstruction
	case '2':
		return CategorySchema
	case '3':
		return CategoryWrite
	case '4':
		return CategoryQuery
	case '5':
		return CategoryConsistency
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConsistency, ErrCodeSchemaMismatch:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode reports whether the caller may retry the failed call.
// Nothing inside roomsearch retries on its own.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeIndexLocked, ErrCodeCommitFailed, ErrCodeReloadFailed:
		return true
	default:
		return false
	}
}
