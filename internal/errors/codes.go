// Package errors provides structured error handling for searchapi.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (index disabled, no fields, no server)
//   - 2XX: Storage errors (tracker store, backend I/O)
//   - 4XX: Validation errors (invalid field, operator or query)
//   - 5XX: Internal errors
//   - 6XX: Plugin resolution errors (non-fatal)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates index/server configuration errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates tracker store or backend I/O errors.
	CategoryStorage Category = "STORAGE"
	// CategoryValidation indicates invalid caller input.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
	// CategoryPlugin indicates a processor, datasource or backend could not be resolved.
	CategoryPlugin Category = "PLUGIN"
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
	// Configuration errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeIndexDisabled    = "ERR_103_INDEX_DISABLED"
	ErrCodeIndexReadOnly    = "ERR_104_INDEX_READ_ONLY"
	ErrCodeNoFields         = "ERR_105_NO_FIELDS"
	ErrCodeNoServer         = "ERR_106_NO_SERVER"
	ErrCodeUnknownIndex     = "ERR_107_UNKNOWN_INDEX"
	ErrCodeUnknownServer    = "ERR_108_UNKNOWN_SERVER"
	ErrCodeUnsupportedType  = "ERR_109_UNSUPPORTED_TYPE"

	// Storage errors (200-299)
	ErrCodeStorage        = "ERR_201_STORAGE"
	ErrCodeStorageBusy    = "ERR_202_STORAGE_BUSY"
	ErrCodeStorageCorrupt = "ERR_203_STORAGE_CORRUPT"
	ErrCodeBackend        = "ERR_204_BACKEND"
	ErrCodeDatasource     = "ERR_205_DATASOURCE"

	// Validation errors (400-499)
	ErrCodeInvalidInput    = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidField    = "ERR_402_INVALID_FIELD"
	ErrCodeInvalidOperator = "ERR_403_INVALID_OPERATOR"
	ErrCodeInvalidQuery    = "ERR_404_INVALID_QUERY"
	ErrCodeInvalidItemID   = "ERR_405_INVALID_ITEM_ID"

	// Internal errors (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeIndexFailed   = "ERR_502_INDEX_FAILED"
	ErrCodeSearchFailed  = "ERR_503_SEARCH_FAILED"
	ErrCodeExtractFailed = "ERR_504_EXTRACT_FAILED"

	// Plugin resolution errors (600-699)
	ErrCodePluginUnknown       = "ERR_601_PLUGIN_UNKNOWN"
	ErrCodePluginInvalid       = "ERR_602_PLUGIN_INVALID"
	ErrCodePluginNotApplicable = "ERR_603_PLUGIN_NOT_APPLICABLE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '4':
		return CategoryValidation
	case '6':
		return CategoryPlugin
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStorageCorrupt:
		return SeverityFatal
	}

	// Plugin resolution never aborts an operation
	if categoryFromCode(code) == CategoryPlugin {
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStorageBusy:
		return true
	default:
		return false
	}
}
