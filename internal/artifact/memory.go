package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

// MemoryRepo binds named external knowledge artifacts to the session.
type MemoryRepo struct {
	store    *session.Store
	registry *schema.Registry
}

// LinkOptions controls how a memory is linked.
type LinkOptions struct {
	Summary   string
	ForAgents []schema.AgentType
	// Extract pulls traceabilityData out of the source document.
	Extract bool
}

// Link records a memory under memories/<name>.json. The source path must
// exist; extraction failures degrade to a link without traceability data.
func (r *MemoryRepo) Link(name, sourcePath string, opts LinkOptions) (*schema.LinkedMemory, error) {
	if name == "" {
		return nil, &schema.ValidationError{FieldPath: "/memoryName", Message: "memory name is required"}
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("memory source %s: %w", sourcePath, session.ErrNotFound)
	}

	mem := &schema.LinkedMemory{
		MemoryName: name,
		SourcePath: sourcePath,
		LinkedAt:   schema.Now(),
		ForAgents:  opts.ForAgents,
		Summary:    opts.Summary,
	}
	if opts.Extract {
		if td, err := extractTraceability(sourcePath); err != nil {
			logging.SessionWarn("traceability extraction from %s failed: %v", sourcePath, err)
		} else {
			mem.TraceabilityData = td
		}
	}
	if err := r.registry.Validate(schema.KindMemory, mem); err != nil {
		return nil, err
	}

	if err := r.store.WriteJSON("memories/"+name+".json", mem); err != nil {
		return nil, err
	}
	if err := r.store.AppendHistory("memory", name); err != nil {
		return nil, err
	}
	logging.Session("linked memory %s from %s", name, sourcePath)
	return mem, nil
}

// Get returns one linked memory by name.
func (r *MemoryRepo) Get(name string) (*schema.LinkedMemory, error) {
	var mem schema.LinkedMemory
	if err := r.store.ReadJSON("memories/"+name+".json", &mem); err != nil {
		return nil, err
	}
	return &mem, nil
}

// List returns the linked memory names in directory order.
func (r *MemoryRepo) List() ([]string, error) {
	names, err := r.store.ListDir("memories", func(name string) bool {
		return strings.HasSuffix(name, ".json")
	})
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		names[i] = strings.TrimSuffix(name, ".json")
	}
	return names, nil
}

// All returns every linked memory, skipping unreadable files with a
// warning.
func (r *MemoryRepo) All() ([]schema.LinkedMemory, error) {
	names, err := r.List()
	if err != nil {
		return nil, err
	}
	memories := make([]schema.LinkedMemory, 0, len(names))
	for _, name := range names {
		mem, err := r.Get(name)
		if err != nil {
			logging.SessionWarn("skipping unreadable memory %s: %v", name, err)
			continue
		}
		memories = append(memories, *mem)
	}
	return memories, nil
}

// extractTraceability reads traceability data out of a source document.
// It accepts both a top-level traceabilityData object and the bare
// analyzed_symbols / entry_points / data_flow_map fields agents emit.
func extractTraceability(sourcePath string) (*schema.TraceabilityData, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		TraceabilityData *schema.TraceabilityData `json:"traceabilityData"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.TraceabilityData != nil {
		return wrapped.TraceabilityData, nil
	}
	var bare schema.TraceabilityData
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("source is not a JSON document: %w", err)
	}
	if len(bare.AnalyzedSymbols) == 0 && len(bare.EntryPoints) == 0 && len(bare.DataFlowMap) == 0 {
		return nil, fmt.Errorf("source carries no traceability fields")
	}
	return &bare, nil
}
