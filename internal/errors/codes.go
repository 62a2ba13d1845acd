// Package errors provides structured error handling for Kotoba.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, index)
//   - 3XX: Network and retrieval source errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and index I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network and retrieval source errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
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
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeCorruptIndex = "ERR_202_CORRUPT_INDEX"
	ErrCodeCorpusLoad   = "ERR_203_CORPUS_LOAD"

	// Network and source errors (300-399)
	ErrCodeNetworkTimeout    = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeSourceUnavailable = "ERR_302_SOURCE_UNAVAILABLE"
	ErrCodeRerankUnavailable = "ERR_303_RERANK_UNAVAILABLE"
	ErrCodeEmbedUnavailable  = "ERR_304_EMBED_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"
	ErrCodeInvalidMaxResults = "ERR_404_INVALID_MAX_RESULTS"
	ErrCodeInvalidLevel      = "ERR_405_INVALID_LEVEL"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed  = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed     = "ERR_503_SEARCH_FAILED"
	ErrCodeAllSourcesFailed = "ERR_504_ALL_SOURCES_FAILED"
	ErrCodeIndexFailed      = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	}

	// A single degraded retrieval source is a warning; the pipeline
	// continues with whatever sources remain.
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeSourceUnavailable,
		ErrCodeRerankUnavailable, ErrCodeEmbedUnavailable:
		return true
	default:
		return false
	}
}
