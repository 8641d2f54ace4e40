package orchestrator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

func TestNewFailureValidationDetails(t *testing.T) {
	err := fmt.Errorf("plan rejected: %w", &schema.ValidationError{FieldPath: "/phases/0/id", Message: "required"})
	f := NewFailure(err)
	if f.Success {
		t.Error("failure marked success")
	}
	details, ok := f.Details.(map[string]string)
	if !ok || details["fieldPath"] != "/phases/0/id" {
		t.Errorf("details = %v", f.Details)
	}
}

func TestNewFailureNotFound(t *testing.T) {
	f := NewFailure(fmt.Errorf("read plan: %w", session.ErrNotFound))
	details, ok := f.Details.(map[string]string)
	if !ok || details["kind"] != "not_found" {
		t.Errorf("details = %v", f.Details)
	}
}

func TestNewFailurePlainError(t *testing.T) {
	f := NewFailure(errors.New("boom"))
	if f.Error != "boom" || f.Details != nil {
		t.Errorf("failure = %+v", f)
	}
}
