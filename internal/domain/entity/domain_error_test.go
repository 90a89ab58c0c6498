package entity

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_CodeSurvivesWrapping(t *testing.T) {
	base := NewDomainError("job is already terminal", "INVALID_STATUS_TRANSITION")
	wrapped := fmt.Errorf("cancel job: %w", base)

	var domainErr *DomainError
	if !errors.As(wrapped, &domainErr) {
		t.Fatalf("expected a DomainError in the chain, got %v", wrapped)
	}
	if domainErr.Code() != "INVALID_STATUS_TRANSITION" {
		t.Errorf("Code() = %q, want INVALID_STATUS_TRANSITION", domainErr.Code())
	}
	if domainErr.Message() != "job is already terminal" {
		t.Errorf("Message() = %q", domainErr.Message())
	}
	if wrapped.Error() != "cancel job: job is already terminal" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}
