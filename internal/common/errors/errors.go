// Package errors provides standardized error handling for the retrieval pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Request/input errors.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Search errors. NO_CANDIDATES is a valid outcome, not a fault: the
	// repository genuinely has nothing matching the request.
	ErrCodeNoCandidates      ErrorCode = "NO_CANDIDATES"
	ErrCodeSearchQueryFailed ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchTimeout     ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeIndexNotFound     ErrorCode = "INDEX_NOT_FOUND"

	// Selection errors.
	ErrCodeSelectorTimeout ErrorCode = "SELECTOR_TIMEOUT"
	ErrCodeSelectorFailed  ErrorCode = "SELECTOR_FAILED"

	// Download/cache errors.
	ErrCodeDownloadFailed  ErrorCode = "DOWNLOAD_FAILED"
	ErrCodeDownloadCorrupt ErrorCode = "DOWNLOAD_CORRUPT"
	ErrCodeNoVariants      ErrorCode = "NO_VARIANTS"

	// Instruction/document errors.
	ErrCodeInstructionGenerationFailed ErrorCode = "INSTRUCTION_GENERATION_FAILED"
	ErrCodeEmptyDocument               ErrorCode = "EMPTY_DOCUMENT"

	// Persistence errors.
	ErrCodeDatabaseInsertFailed ErrorCode = "DATABASE_INSERT_FAILED"

	// Notification errors.
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// CodeOf extracts the ErrorCode from an error chain, or UNKNOWN_ERROR.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return "UNKNOWN_ERROR"
}

// IsRetryable reports whether the error chain carries a retryable StandardError.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// NewInvalidInputError creates a non-retryable bad prompt error.
func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Prompt is empty or invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoCandidatesError marks the no-match outcome for a prompt.
func NewNoCandidatesError(prompt string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoCandidates,
		Message:   "No models found matching the search criteria",
		Details:   fmt.Sprintf("prompt: %s", prompt),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchQueryFailedError creates a retryable catalog query error.
func NewSearchQueryFailedError(strategy string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQueryFailed,
		Message:   "Catalog query error",
		Details:   fmt.Sprintf("strategy: %s, error: %s", strategy, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchTimeoutError creates a retryable catalog timeout error.
func NewSearchTimeoutError(strategy string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchTimeout,
		Message:   "Catalog query timeout",
		Details:   fmt.Sprintf("strategy: %s", strategy),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexNotFoundError creates a non-retryable search index error.
func NewIndexNotFoundError(indexName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexNotFound,
		Message:   "Search index not found",
		Details:   fmt.Sprintf("indexName: %s", indexName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSelectorTimeoutError creates a retryable reasoning service timeout error.
func NewSelectorTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeSelectorTimeout,
		Message:   "Reasoning service timeout",
		Details:   "selection call exceeded timeout threshold",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSelectorFailedError creates a retryable reasoning service error.
func NewSelectorFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSelectorFailed,
		Message:   "Reasoning service error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDownloadFailedError creates a retryable model download error.
func NewDownloadFailedError(url string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDownloadFailed,
		Message:   "Model file download failed",
		Details:   fmt.Sprintf("url: %s, error: %s", url, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDownloadCorruptError marks a downloaded file that failed validation.
// The entry is never committed to the cache.
func NewDownloadCorruptError(fingerprint, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDownloadCorrupt,
		Message:   "Downloaded model file failed validation",
		Details:   fmt.Sprintf("fingerprint: %s, %s", fingerprint, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoVariantsError creates a non-retryable missing download variant error.
func NewNoVariantsError(setNumber string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoVariants,
		Message:   "No download variants found for the selected model",
		Details:   fmt.Sprintf("setNumber: %s", setNumber),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInstructionGenerationFailedError wraps a CAD tool failure with its
// diagnostic output.
func NewInstructionGenerationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInstructionGenerationFailed,
		Message:   "Instruction generation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmptyDocumentError marks assembly where every step image was unusable.
func NewEmptyDocumentError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmptyDocument,
		Message:   "No usable step images for document assembly",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable result persistence error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}
