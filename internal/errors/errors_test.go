package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("disk unreadable")

	// When: wrapping with IndexError
	ie := New(ErrCodeIndexOpen, "cannot open index", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, ie)
	assert.Equal(t, originalErr, errors.Unwrap(ie))
	assert.True(t, errors.Is(ie, originalErr))
}

func TestIndexError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "construction error",
			code:     ErrCodeIndexExists,
			message:  "index already exists",
			expected: "[ERR_103_INDEX_EXISTS] index already exists",
		},
		{
			name:     "schema error",
			code:     ErrCodeSchemaMismatch,
			message:  "missing body",
			expected: "[ERR_201_SCHEMA_MISMATCH] missing body",
		},
		{
			name:     "query error",
			code:     ErrCodeInvalidQuery,
			message:  "unbalanced parenthesis",
			expected: "[ERR_401_INVALID_QUERY] unbalanced parenthesis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestIndexError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeCommitFailed, "commit A failed", nil)
	err2 := New(ErrCodeCommitFailed, "commit B failed", nil)

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, New(ErrCodeWriterClosed, "closed", nil)))
}

func TestIndexError_Is_MatchesCategorySentinels(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{New(ErrCodeIndexLocked, "locked", nil), ErrConstruction},
		{SchemaMismatch("body"), ErrSchema},
		{New(ErrCodeDocumentRejected, "rejected", nil), ErrWrite},
		{UnknownField("color"), ErrQuery},
		{Consistency("numeric event_id"), ErrConsistency},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			// And: wrapping with fmt keeps the match
			assert.True(t, errors.Is(fmt.Errorf("outer: %w", tt.err), tt.sentinel))
		})
	}

	assert.False(t, errors.Is(SchemaMismatch("body"), ErrQuery))
}

func TestIndexError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeIndexCreate, CategoryConstruction},
		{ErrCodeConfigInvalid, CategoryConstruction},
		{ErrCodeSchemaMismatch, CategorySchema},
		{ErrCodeCommitFailed, CategoryWrite},
		{ErrCodeUnknownField, CategoryQuery},
		{ErrCodeReloadFailed, CategoryQuery},
		{ErrCodeConsistency, CategoryConsistency},
		{ErrCodeInternal, CategoryInternal},
		{"bad", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestIndexError_SeverityAndRetryable(t *testing.T) {
	tests := []struct {
		code          string
		wantSeverity  Severity
		wantRetryable bool
	}{
		{ErrCodeConsistency, SeverityFatal, false},
		{ErrCodeSchemaMismatch, SeverityFatal, false},
		{ErrCodeIndexLocked, SeverityWarning, true},
		{ErrCodeCommitFailed, SeverityWarning, true},
		{ErrCodeInvalidQuery, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
			assert.Equal(t, tt.wantRetryable, IsRetryable(err))
			assert.Equal(t, tt.wantSeverity == SeverityFatal, IsFatal(err))
		})
	}
}

func TestWrap_KeepsExistingIndexError(t *testing.T) {
	// Given: an IndexError
	inner := UnknownField("color")

	// When: wrapping it again under a different code
	wrapped := Wrap(ErrCodeSearchFailed, inner)

	// Then: the original code survives
	assert.Same(t, inner, wrapped)
	assert.Nil(t, Wrap(ErrCodeSearchFailed, nil))
}

func TestWrapf_AddsContext(t *testing.T) {
	cause := errors.New("permission denied")

	err := Wrapf(ErrCodeIndexCreate, cause, "create index at %s", "/tmp/x")

	assert.Equal(t, "[ERR_101_INDEX_CREATE] create index at /tmp/x: permission denied", err.Error())
	assert.Equal(t, cause, err.Cause)
}

func TestGetCodeAndCategory(t *testing.T) {
	assert.Equal(t, ErrCodeUnknownField, GetCode(UnknownField("x")))
	assert.Equal(t, CategoryQuery, GetCategory(UnknownField("x")))
	assert.Empty(t, GetCode(errors.New("plain")))
	assert.Empty(t, GetCategory(errors.New("plain")))
}

func TestSchemaMismatch_NamesField(t *testing.T) {
	err := SchemaMismatch("body")

	assert.Contains(t, err.Error(), `"body"`)
	assert.Equal(t, "body", err.Details["field"])
	assert.NotEmpty(t, err.Suggestion)
}
