package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ProjectRootMissing, "project root does not exist", nil)
	want := "[PROJECT_ROOT_MISSING] project root does not exist"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	cause := errors.New("stat /nope: no such file or directory")
	wrapped := New(ProjectRootMissing, "project root does not exist", cause)
	if wrapped.Error() != want+": "+cause.Error() {
		t.Errorf("Error() with cause = %q", wrapped.Error())
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("disk full")
	err := New(StorageUnavailable, "cannot open index database", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}

	outer := fmt.Errorf("opening storage: %w", err)
	if CodeOf(outer) != StorageUnavailable {
		t.Errorf("CodeOf(wrapped) = %s, want STORAGE_UNAVAILABLE", CodeOf(outer))
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if CodeOf(errors.New("plain")) != InternalError {
		t.Error("plain errors should map to INTERNAL_ERROR")
	}
}

func TestHasCode(t *testing.T) {
	err := New(IndexBusy, "transaction conflict", nil)
	if !HasCode(err, IndexBusy) {
		t.Error("HasCode should match the error's own code")
	}
	if HasCode(err, StorageCorrupt) {
		t.Error("HasCode should not match a different code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(InvalidArgument, "bad limit", nil).WithDetails(map[string]interface{}{
		"limit": -3,
	})
	details, ok := err.Details.(map[string]interface{})
	if !ok || details["limit"] != -3 {
		t.Errorf("Details not preserved: %#v", err.Details)
	}
}
