// Package artifact provides the typed repositories over the session
// store: per-kind write, read and list with schema validation, pointer
// mirrors, and history journaling.
package artifact

import (
	"fmt"
	"strings"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

// Repos bundles every repository bound to one session.
type Repos struct {
	Prompts  *PromptRepo
	Plans    *PlanRepo
	Handoffs *HandoffRepo
	State    *StateRepo
	Memories *MemoryRepo
	Evidence *EvidenceRepo
	Gates    *GateRepo
}

// NewRepos wires the repositories to a store and schema registry.
func NewRepos(store *session.Store, registry *schema.Registry) *Repos {
	return &Repos{
		Prompts:  &PromptRepo{store: store, registry: registry},
		Plans:    &PlanRepo{store: store, registry: registry},
		Handoffs: &HandoffRepo{store: store, registry: registry},
		State:    &StateRepo{store: store, registry: registry},
		Memories: &MemoryRepo{store: store, registry: registry},
		Evidence: &EvidenceRepo{store: store, registry: registry},
		Gates:    &GateRepo{store: store, registry: registry},
	}
}

// noCurrentError builds the NotFound error for a missing pointer mirror.
// When canonical files exist, the message enumerates their ids so the
// caller can retry with an explicit one.
func noCurrentError(kind string, available []string) error {
	if len(available) == 0 {
		return fmt.Errorf("no %s in session: %w", kind, session.ErrNotFound)
	}
	return fmt.Errorf("no current %s pointer; available ids: %s: %w",
		kind, strings.Join(available, ", "), session.ErrNotFound)
}

// idFromFilename extracts <id> from <prefix><id>.json.
func idFromFilename(name, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
}

// hasPrefixJSON filters a directory listing to canonical artifact files.
func hasPrefixJSON(prefix string) func(string) bool {
	return func(name string) bool {
		return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".json")
	}
}
