// Package errors provides structured error handling for Temoa.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Vault errors (root missing, unreadable files)
//   - 2XX: Index errors (on-disk store inconsistent, locked)
//   - 3XX: Search errors (model load, retrieval I/O)
//   - 4XX: Config errors (invalid parameters, unknown profile)
//   - 5XX: Timeout errors (stage or whole-query deadline)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryVault indicates vault enumeration and read errors.
	CategoryVault Category = "VAULT"
	// CategoryIndex indicates on-disk index store errors.
	CategoryIndex Category = "INDEX"
	// CategorySearch indicates retrieval stage errors.
	CategorySearch Category = "SEARCH"
	// CategoryConfig indicates configuration and validation errors.
	CategoryConfig Category = "CONFIG"
	// CategoryTimeout indicates deadline-exceeded errors.
	CategoryTimeout Category = "TIMEOUT"
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
	// Vault errors (100-199)
	ErrCodeVaultNotFound   = "ERR_101_VAULT_NOT_FOUND"
	ErrCodeVaultUnreadable = "ERR_102_VAULT_UNREADABLE"
	ErrCodeFileUnreadable  = "ERR_103_FILE_UNREADABLE"

	// Index errors (200-299)
	ErrCodeIndexLengthMismatch = "ERR_201_INDEX_LENGTH_MISMATCH"
	ErrCodeIndexCorrupt        = "ERR_202_INDEX_CORRUPT"
	ErrCodeIndexVaultMismatch  = "ERR_203_INDEX_VAULT_MISMATCH"
	ErrCodeDimensionMismatch   = "ERR_204_INDEX_DIMENSION_MISMATCH"
	ErrCodeIndexLocked         = "ERR_205_INDEX_LOCKED"
	ErrCodeIndexModelMismatch  = "ERR_206_INDEX_MODEL_MISMATCH"

	// Search errors (300-399)
	ErrCodeEmbedFailed      = "ERR_301_EMBED_FAILED"
	ErrCodeRetrievalFailed  = "ERR_302_RETRIEVAL_FAILED"
	ErrCodeRerankFailed     = "ERR_303_RERANK_FAILED"
	ErrCodeModelUnavailable = "ERR_304_MODEL_UNAVAILABLE"

	// Config errors (400-499)
	ErrCodeInvalidParam   = "ERR_401_INVALID_PARAM"
	ErrCodeUnknownProfile = "ERR_402_UNKNOWN_PROFILE"
	ErrCodeUnknownVault   = "ERR_403_UNKNOWN_VAULT"
	ErrCodeConfigInvalid  = "ERR_404_CONFIG_INVALID"

	// Timeout errors (500-599)
	ErrCodeStageTimeout = "ERR_501_STAGE_TIMEOUT"
	ErrCodeQueryTimeout = "ERR_502_QUERY_TIMEOUT"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategorySearch
	}

	switch code[4] {
	case '1':
		return CategoryVault
	case '2':
		return CategoryIndex
	case '3':
		return CategorySearch
	case '4':
		return CategoryConfig
	case '5':
		return CategoryTimeout
	default:
		return CategorySearch
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Fatal errors: saves that would corrupt, cross-vault writes
	switch code {
	case ErrCodeVaultNotFound, ErrCodeIndexVaultMismatch, ErrCodeIndexLengthMismatch:
		return SeverityFatal
	}

	// Skippable stage timeouts degrade rather than fail
	if code == ErrCodeStageTimeout {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeModelUnavailable, ErrCodeEmbedFailed, ErrCodeRerankFailed,
		ErrCodeStageTimeout, ErrCodeQueryTimeout, ErrCodeIndexLocked:
		return true
	default:
		return false
	}
}
