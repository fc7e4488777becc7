// Package errors provides structured error types for molsystem.
// All errors include a category, code, message, and retryable flag so callers
// can branch on the kind of failure with errors.Is.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategorySchema     ErrorCategory = "SCHEMA"
	ErrCategoryRow        ErrorCategory = "ROW"
	ErrCategoryStore      ErrorCategory = "STORE"
	ErrCategoryArchive    ErrorCategory = "ARCHIVE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidIdentifier = "INVALID_IDENTIFIER"
	CodeInvalidType       = "INVALID_TYPE"

	// Schema codes
	CodeDuplicateAttribute = "DUPLICATE_ATTRIBUTE"
	CodeInvalidPrimaryKey  = "INVALID_PRIMARY_KEY"
	CodeMissingDefault     = "MISSING_DEFAULT"
	CodeTableNotFound      = "TABLE_NOT_FOUND"
	CodeTableExists        = "TABLE_EXISTS"

	// Row codes
	CodeValueCountMismatch = "VALUE_COUNT_MISMATCH"
	CodeUnknownAttribute   = "UNKNOWN_ATTRIBUTE"

	// Store codes
	CodeStoreExecution = "STORE_EXECUTION"
	CodeAttachInUse    = "ATTACH_IN_USE"

	// Archive codes
	CodeCorruptSnapshot  = "CORRUPT_SNAPSHOT"
	CodeSnapshotNotFound = "SNAPSHOT_NOT_FOUND"
	CodeArchiveIO        = "ARCHIVE_IO"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is. Matching is by category and code only.
var (
	ErrInvalidIdentifier  = New(ErrCategoryValidation, CodeInvalidIdentifier, "invalid identifier")
	ErrInvalidType        = New(ErrCategoryValidation, CodeInvalidType, "invalid attribute type")
	ErrDuplicateAttribute = New(ErrCategorySchema, CodeDuplicateAttribute, "attribute already defined")
	ErrInvalidPrimaryKey  = New(ErrCategorySchema, CodeInvalidPrimaryKey, "invalid primary key")
	ErrMissingDefault     = New(ErrCategorySchema, CodeMissingDefault, "attribute has no default")
	ErrTableNotFound      = New(ErrCategorySchema, CodeTableNotFound, "table not found")
	ErrTableExists        = New(ErrCategorySchema, CodeTableExists, "table already exists")
	ErrValueCountMismatch = New(ErrCategoryRow, CodeValueCountMismatch, "wrong number of values")
	ErrUnknownAttribute   = New(ErrCategoryRow, CodeUnknownAttribute, "unknown attribute")
	ErrStoreExecution     = New(ErrCategoryStore, CodeStoreExecution, "store execution failed")
	ErrAttachInUse        = New(ErrCategoryStore, CodeAttachInUse, "attach slot in use")
	ErrCorruptSnapshot    = New(ErrCategoryArchive, CodeCorruptSnapshot, "corrupt snapshot")
	ErrSnapshotNotFound   = New(ErrCategoryArchive, CodeSnapshotNotFound, "snapshot not found")
	ErrArchiveIO          = New(ErrCategoryArchive, CodeArchiveIO, "archive storage failed")
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// isRetryable reports whether retrying the same call later can succeed.
// Only a busy attach slot qualifies; it frees once the other comparison returns.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryStore && code == CodeAttachInUse
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *Error {
	return New(ErrCategoryValidation, code, message)
}

func NewSchemaError(code, message string) *Error {
	return New(ErrCategorySchema, code, message)
}

func NewRowError(code, message string) *Error {
	return New(ErrCategoryRow, code, message)
}

// NewStoreError wraps a driver failure. The statement, when known, is kept in Details.
func NewStoreError(statement string, cause error) *Error {
	err := Wrap(ErrCategoryStore, CodeStoreExecution, "store execution failed", cause)
	if statement != "" {
		err.Details = map[string]interface{}{"statement": statement}
	}
	return err
}

func NewArchiveError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryArchive, code, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// ValueCountMismatch reports a sequence whose length is neither 0, 1, nor the expected row count.
func ValueCountMismatch(attribute string, length, expected int) *Error {
	return NewRowError(CodeValueCountMismatch, fmt.Sprintf(
		"attribute %q has the wrong number of values, %d: should be 1 or the number of rows (%d)",
		attribute, length, expected,
	)).WithDetails(map[string]interface{}{
		"attribute": attribute,
		"length":    length,
		"expected":  expected,
	})
}
