// Package errors provides tests for error code handling.
package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

// TestAppErrorFormat tests the code-prefixed message format.
func TestAppErrorFormat(t *testing.T) {
	err := New(ErrSyncFailed, "drain pass failed")
	if !strings.Contains(err.Error(), "[SYNC_FAILED]") {
		t.Errorf("Expected code in message, got %q", err.Error())
	}

	wrapped := Wrap(ErrRemoteCreate, "create sale", stderrors.New("connection refused"))
	if !strings.Contains(wrapped.Error(), "connection refused") {
		t.Errorf("Expected cause in message, got %q", wrapped.Error())
	}
}

// TestUnwrap tests that the cause is reachable via errors.Unwrap.
func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	wrapped := Wrap(ErrDatabase, "query", cause)

	if !stderrors.Is(wrapped, cause) {
		t.Error("Expected wrapped cause to satisfy errors.Is")
	}
}

// TestIsCode tests code matching.
func TestIsCode(t *testing.T) {
	err := New(ErrUnknownOpType, "foo")

	if !Is(err, ErrUnknownOpType) {
		t.Error("Expected code match")
	}
	if Is(err, ErrSyncFailed) {
		t.Error("Expected code mismatch")
	}
	if Is(stderrors.New("plain"), ErrSyncFailed) {
		t.Error("Plain errors never match a code")
	}
}
