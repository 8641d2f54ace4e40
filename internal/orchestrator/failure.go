package orchestrator

import (
	"errors"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/gate"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

// Failure is the structured error body facade consumers emit on failed
// commands, typically as JSON alongside exit code 1.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// NewFailure wraps an error as a structured failure, attaching field and
// position details for validation and parse errors.
func NewFailure(err error) *Failure {
	f := &Failure{Success: false, Error: err.Error()}

	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		f.Details = map[string]string{"fieldPath": verr.FieldPath, "message": verr.Message}
		return f
	}
	var perr *gate.ParseError
	if errors.As(err, &perr) {
		f.Details = map[string]any{"offset": perr.Pos, "message": perr.Message}
		return f
	}
	if session.IsNotFound(err) {
		f.Details = map[string]string{"kind": "not_found"}
	}
	return f
}
