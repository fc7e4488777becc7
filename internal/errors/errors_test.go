package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := New(ErrCategorySchema, CodeDuplicateAttribute, "attribute 'x' is already defined")
	expected := "[SCHEMA:DUPLICATE_ATTRIBUTE] attribute 'x' is already defined"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("no such table: bond")
	err := NewStoreError("SELECT 1", cause)
	expected := "[STORE:STORE_EXECUTION] store execution failed: no such table: bond"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
	if err.Details["statement"] != "SELECT 1" {
		t.Errorf("statement detail: got %v, want %q", err.Details["statement"], "SELECT 1")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewStoreError("", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
	if err.Details != nil {
		t.Error("empty statement should not add details")
	}
}

func TestError_IsSentinel(t *testing.T) {
	err := ValueCountMismatch("x", 2, 3)
	if !errors.Is(err, ErrValueCountMismatch) {
		t.Error("ValueCountMismatch should match ErrValueCountMismatch")
	}
	if errors.Is(err, ErrUnknownAttribute) {
		t.Error("different codes should not match via Is")
	}

	wrapped := fmt.Errorf("append: %w", NewSchemaError(CodeMissingDefault, "no default for 'y'"))
	if !errors.Is(wrapped, ErrMissingDefault) {
		t.Error("wrapped schema error should match its sentinel")
	}

	missing := NewArchiveError(CodeSnapshotNotFound, "no snapshot at k", nil)
	if !errors.Is(missing, ErrSnapshotNotFound) || errors.Is(missing, ErrArchiveIO) {
		t.Error("archive errors should match only their own code")
	}
	exists := NewSchemaError(CodeTableExists, "table bond already exists")
	if !errors.Is(exists, ErrTableExists) {
		t.Error("schema error should match ErrTableExists")
	}
}

func TestValueCountMismatch_Details(t *testing.T) {
	err := ValueCountMismatch("bondorder", 2, 7)
	if err.Details["attribute"] != "bondorder" {
		t.Errorf("attribute: got %v, want bondorder", err.Details["attribute"])
	}
	if err.Details["length"] != 2 {
		t.Errorf("length: got %v, want 2", err.Details["length"])
	}
	if err.Details["expected"] != 7 {
		t.Errorf("expected: got %v, want 7", err.Details["expected"])
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStore, CodeAttachInUse, true},
		{ErrCategoryStore, CodeStoreExecution, false},
		{ErrCategorySchema, CodeDuplicateAttribute, false},
		{ErrCategoryRow, CodeValueCountMismatch, false},
		{ErrCategoryValidation, CodeInvalidIdentifier, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategory(t *testing.T) {
	err := New(ErrCategoryRow, CodeUnknownAttribute, "no such attribute")
	if GetCategory(err) != ErrCategoryRow {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryRow)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("plain error should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCategoryRow, CodeUnknownAttribute, "no such attribute")
	if GetCode(err) != CodeUnknownAttribute {
		t.Errorf("got %q, want %q", GetCode(err), CodeUnknownAttribute)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("plain error should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryValidation, CodeInvalidIdentifier, "bad name")
	detailed := err.WithDetails(map[string]interface{}{"identifier": "a-b"})

	if detailed.Details["identifier"] != "a-b" {
		t.Error("WithDetails should set details")
	}
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	v := NewValidationError(CodeInvalidType, "unknown type")
	if v.Category != ErrCategoryValidation || v.Code != CodeInvalidType {
		t.Error("NewValidationError mismatch")
	}

	a := NewArchiveError(CodeCorruptSnapshot, "bad checksum", cause)
	if a.Category != ErrCategoryArchive || !errors.Is(a, cause) {
		t.Error("NewArchiveError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
