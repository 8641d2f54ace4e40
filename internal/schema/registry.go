package schema

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ValidationError reports a schema or cross-field violation. FieldPath is
// a /-separated instance location within the artifact.
type ValidationError struct {
	FieldPath string
	Message   string
}

func (e *ValidationError) Error() string {
	if e.FieldPath == "" || e.FieldPath == "/" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.FieldPath, e.Message)
}

// Registry validates artifacts against their embedded JSON Schemas.
type Registry struct {
	compiled map[Kind]*jsonschema.Schema
}

var allKinds = []Kind{
	KindPrompt, KindPlan, KindHandoff, KindState,
	KindMemory, KindEvidence, KindGate,
}

// NewRegistry compiles every embedded schema. Call once and share; the
// registry is read-only after construction.
func NewRegistry() (*Registry, error) {
	c := jsonschema.NewCompiler()
	for _, kind := range allKinds {
		data, err := schemaFS.ReadFile("schemas/" + string(kind) + ".json")
		if err != nil {
			return nil, fmt.Errorf("read schema for %s: %w", kind, err)
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal schema for %s: %w", kind, err)
		}
		if err := c.AddResource(resourceURL(kind), doc); err != nil {
			return nil, fmt.Errorf("add schema resource for %s: %w", kind, err)
		}
	}

	compiled := make(map[Kind]*jsonschema.Schema, len(allKinds))
	for _, kind := range allKinds {
		s, err := c.Compile(resourceURL(kind))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", kind, err)
		}
		compiled[kind] = s
	}
	return &Registry{compiled: compiled}, nil
}

func resourceURL(kind Kind) string {
	return "https://orchestration.local/schemas/" + string(kind) + ".json"
}

// Validate checks an artifact against its schema and, for plans, the
// cross-field dependency rules. A nil error means the artifact may be
// persisted.
func (r *Registry) Validate(kind Kind, artifact any) error {
	s, ok := r.compiled[kind]
	if !ok {
		return fmt.Errorf("no schema registered for kind %q", kind)
	}

	// Round-trip through JSON so validation sees exactly what would be
	// written to disk.
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshal %s artifact: %w", kind, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode %s artifact: %w", kind, err)
	}

	if err := s.Validate(doc); err != nil {
		return asValidationError(err)
	}

	if p, ok := artifact.(*Plan); ok {
		return validateDependencies(p)
	}
	return nil
}

// asValidationError flattens a jsonschema error tree to the deepest cause.
func asValidationError(err error) error {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	leaf := verr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	msg := leaf.Error()
	if i := strings.LastIndex(msg, "': "); i >= 0 {
		msg = msg[i+3:]
	}
	return &ValidationError{
		FieldPath: "/" + strings.Join(leaf.InstanceLocation, "/"),
		Message:   msg,
	}
}

// validateDependencies enforces that subtask ids are unique across the
// plan and that every dependency names an earlier subtask. Rejecting
// forward references here makes dependency cycles unrepresentable in a
// stored plan; the scheduler still tolerates them for phases fed to it
// directly.
func validateDependencies(p *Plan) error {
	seen := make(map[string]bool)
	for pi := range p.Phases {
		ph := &p.Phases[pi]
		for ti := range ph.Subtasks {
			t := &ph.Subtasks[ti]
			if seen[t.ID] {
				return &ValidationError{
					FieldPath: fmt.Sprintf("/phases/%d/subtasks/%d/id", pi, ti),
					Message:   fmt.Sprintf("duplicate subtask id %q", t.ID),
				}
			}
			for _, dep := range t.Dependencies {
				if dep == t.ID {
					return &ValidationError{
						FieldPath: fmt.Sprintf("/phases/%d/subtasks/%d/dependencies", pi, ti),
						Message:   fmt.Sprintf("subtask %q depends on itself", t.ID),
					}
				}
				if !seen[dep] {
					return &ValidationError{
						FieldPath: fmt.Sprintf("/phases/%d/subtasks/%d/dependencies", pi, ti),
						Message:   fmt.Sprintf("dependency %q of subtask %q does not name an earlier subtask", dep, t.ID),
					}
				}
			}
			seen[t.ID] = true
		}
	}
	return nil
}
