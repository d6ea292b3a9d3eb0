package errors

import (
	"errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the scan worker.
 *
 * Every failure that can cross a component boundary carries a typed code so
 * callers can tell "document is unusable" apart from "one page failed"
 * without string matching.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Document-level errors (fatal for the document)
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"

	// Page-level errors (document continues)
	ErrorCorruptDocument   ErrorCode = "CORRUPT_DOCUMENT"
	ErrorEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	ErrorEmptyMergeInput   ErrorCode = "EMPTY_MERGE_INPUT"

	// Infrastructure errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorStorageFailed     ErrorCode = "STORAGE_FAILED"
)

// ScanError represents a structured scanning error
type ScanError struct {
	Code       ErrorCode
	Message    string
	DocumentID string
	PageIndex  int // -1 when the error is not tied to a page
	Timestamp  time.Time
	Details    map[string]interface{}
	Cause      error
}

func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the ErrorCode from err, or "" if no ScanError is in the chain.
func CodeOf(err error) ErrorCode {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Factory functions for common errors

func NewUnsupportedFormatError(documentID string, detected string) *ScanError {
	return &ScanError{
		Code:       ErrorUnsupportedFormat,
		Message:    fmt.Sprintf("Unsupported input format: %s", detected),
		DocumentID: documentID,
		PageIndex:  -1,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"detected_format": detected,
		},
	}
}

func NewCorruptDocumentError(documentID string, pageIndex int, cause error) *ScanError {
	return &ScanError{
		Code:       ErrorCorruptDocument,
		Message:    fmt.Sprintf("Page extraction failed at page %d", pageIndex),
		DocumentID: documentID,
		PageIndex:  pageIndex,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

func NewEngineUnavailableError(engine string, pageIndex int, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorEngineUnavailable,
		Message:   fmt.Sprintf("OCR engine %q could not be invoked", engine),
		PageIndex: pageIndex,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine": engine,
		},
		Cause: cause,
	}
}

func NewEmptyMergeInputError(documentID string, pageIndex int) *ScanError {
	return &ScanError{
		Code:       ErrorEmptyMergeInput,
		Message:    fmt.Sprintf("Both OCR engines produced empty output for page %d", pageIndex),
		DocumentID: documentID,
		PageIndex:  pageIndex,
		Timestamp:  time.Now(),
	}
}

func NewProcessingTimeoutError(documentID string, duration time.Duration, cause error) *ScanError {
	return &ScanError{
		Code:       ErrorProcessingTimeout,
		Message:    fmt.Sprintf("Processing timed out after %v", duration),
		DocumentID: documentID,
		PageIndex:  -1,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(documentID string, cause error) *ScanError {
	return &ScanError{
		Code:       ErrorStorageFailed,
		Message:    "Failed to store scan results",
		DocumentID: documentID,
		PageIndex:  -1,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

// ToMap converts error to map for database storage
func (e *ScanError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.PageIndex >= 0 {
		result["page_index"] = e.PageIndex
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
