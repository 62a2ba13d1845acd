package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassification(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"config", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"corrupt index is fatal", ErrCodeCorruptIndex, CategoryIO, SeverityFatal, false},
		{"source unavailable is retryable warning", ErrCodeSourceUnavailable, CategoryNetwork, SeverityWarning, true},
		{"rerank unavailable is retryable warning", ErrCodeRerankUnavailable, CategoryNetwork, SeverityWarning, true},
		{"validation", ErrCodeInvalidMaxResults, CategoryValidation, SeverityError, false},
		{"internal", ErrCodeAllSourcesFailed, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.severity, e.Severity)
			assert.Equal(t, tt.retryable, e.Retryable)
		})
	}
}

func TestKotobaError_ErrorFormat(t *testing.T) {
	e := New(ErrCodeInvalidQuery, "query is empty", nil)
	assert.Equal(t, "[ERR_403_INVALID_QUERY] query is empty", e.Error())
}

func TestKotobaError_UnwrapAndIs(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	e := Wrap(ErrCodeSourceUnavailable, cause)

	assert.ErrorIs(t, e, cause)
	assert.True(t, errors.Is(e, New(ErrCodeSourceUnavailable, "other message", nil)))
	assert.False(t, errors.Is(e, New(ErrCodeInternal, "other", nil)))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestSourceError(t *testing.T) {
	e := SourceError("internet", fmt.Errorf("timeout"))
	assert.Equal(t, ErrCodeSourceUnavailable, e.Code)
	assert.Equal(t, "internet", e.Details["source"])
	assert.True(t, IsRetryable(e))
	assert.False(t, IsFatal(e))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	e := New(ErrCodeConfigInvalid, "bad weights", nil).
		WithDetail("field", "search.weights").
		WithSuggestion("weights must sum to 1.0")

	assert.Equal(t, "search.weights", e.Details["field"])
	assert.Equal(t, "weights must sum to 1.0", e.Suggestion)
}

func TestHelpers_NonKotobaError(t *testing.T) {
	plain := fmt.Errorf("plain")
	assert.False(t, IsRetryable(plain))
	assert.False(t, IsFatal(plain))
	assert.Equal(t, "", GetCode(plain))
	assert.Equal(t, Category(""), GetCategory(plain))
	assert.False(t, IsRetryable(nil))
}

func TestFormatForLog(t *testing.T) {
	e := SourceError("history", fmt.Errorf("db locked")).
		WithSuggestion("check the history database path")

	m := FormatForLog(e)
	require.NotNil(t, m)
	assert.Equal(t, ErrCodeSourceUnavailable, m["error_code"])
	assert.Equal(t, "db locked", m["cause"])
	assert.Equal(t, "history", m["detail_source"])
	assert.Equal(t, true, m["retryable"])

	assert.Equal(t, map[string]any{"error": "plain"}, FormatForLog(fmt.Errorf("plain")))
	assert.Nil(t, FormatForLog(nil))
}

func TestFormatForCLI(t *testing.T) {
	e := New(ErrCodeConfigNotFound, "config file missing", nil).
		WithSuggestion("run kotoba init")

	out := FormatForCLI(e)
	assert.Contains(t, out, "Error: config file missing")
	assert.Contains(t, out, "Hint: run kotoba init")
	assert.Contains(t, out, ErrCodeConfigNotFound)

	// Plain errors are wrapped as internal.
	out = FormatForCLI(fmt.Errorf("boom"))
	assert.Contains(t, out, ErrCodeInternal)
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	e := New(ErrCodeRerankUnavailable, "reranker down", fmt.Errorf("dial tcp"))
	data, err := FormatJSON(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"code":"ERR_303_RERANK_UNAVAILABLE"`)
	assert.Contains(t, string(data), `"retryable":true`)
	assert.Contains(t, string(data), `"cause":"dial tcp"`)
}
