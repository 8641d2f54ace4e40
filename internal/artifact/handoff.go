package artifact

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

const (
	handoffPrefix = "handoff-"
	latestHandoff = "handoffs/latest-handoff.json"
)

// HandoffSummary is the display row List returns.
type HandoffSummary struct {
	ID            string           `json:"id"`
	FromAgentType schema.AgentType `json:"fromAgentType"`
	Timestamp     string           `json:"timestamp"`
}

// HandoffRepo persists agent handoffs. After each successful write the
// post-write hook runs; its failures are logged and never returned, so
// evidence linking can never mask a completed handoff.
type HandoffRepo struct {
	store    *session.Store
	registry *schema.Registry

	// postWrite is set once by the facade to the evidence linker.
	postWrite func(h *schema.Handoff)
}

// SetPostWriteHook installs the hook invoked after successful writes.
func (r *HandoffRepo) SetPostWriteHook(hook func(h *schema.Handoff)) {
	r.postWrite = hook
}

// Write validates and persists a handoff, updates the latest-handoff
// mirror, journals the write, and fires the post-write hook.
func (r *HandoffRepo) Write(h *schema.Handoff) error {
	if h.ID == "" {
		h.ID = schema.NewUUID()
	}
	if h.Metadata.SessionID == "" {
		h.Metadata.SessionID = r.store.ID()
	}
	if h.Metadata.Timestamp == "" {
		h.Metadata.Timestamp = schema.Now()
	}
	if h.Metadata.Version == "" {
		h.Metadata.Version = schema.HandoffVersion
	}
	if err := r.registry.Validate(schema.KindHandoff, h); err != nil {
		return err
	}

	rel := fmt.Sprintf("handoffs/%s%s-%s.json",
		handoffPrefix, h.Metadata.FromAgent.Type, schema.SanitizeTimestamp(h.Metadata.Timestamp))
	if err := r.store.WriteJSON(rel, h); err != nil {
		return err
	}
	if err := r.store.WriteJSON(latestHandoff, h); err != nil {
		return err
	}
	if err := r.store.AppendHistory("handoff", h.ID); err != nil {
		return err
	}
	logging.Session("wrote handoff %s from %s (%d results)", h.ID, h.Metadata.FromAgent.Type, len(h.Results))

	if r.postWrite != nil {
		r.postWrite(h)
	}
	return nil
}

// Read returns the handoff with the given id, or the latest one when id
// is empty. Canonical handoff filenames carry agent type and timestamp
// rather than the id, so an explicit lookup scans the directory.
func (r *HandoffRepo) Read(id string) (*schema.Handoff, error) {
	if id == "" {
		var h schema.Handoff
		if err := r.store.ReadJSON(latestHandoff, &h); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				summaries, _ := r.List()
				available := make([]string, len(summaries))
				for i, s := range summaries {
					available[i] = s.ID
				}
				return nil, noCurrentError("handoff", available)
			}
			return nil, err
		}
		return &h, nil
	}

	names, err := r.store.ListDir("handoffs", hasPrefixJSON(handoffPrefix))
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		var h schema.Handoff
		if err := r.store.ReadJSON("handoffs/"+name, &h); err != nil {
			logging.SessionWarn("skipping unreadable handoff %s: %v", name, err)
			continue
		}
		if h.ID == id {
			return &h, nil
		}
	}
	return nil, fmt.Errorf("handoff %s: %w", id, session.ErrNotFound)
}

// List returns handoff summaries sorted timestamp-descending.
func (r *HandoffRepo) List() ([]HandoffSummary, error) {
	names, err := r.store.ListDir("handoffs", hasPrefixJSON(handoffPrefix))
	if err != nil {
		return nil, err
	}
	summaries := make([]HandoffSummary, 0, len(names))
	for _, name := range names {
		var h schema.Handoff
		if err := r.store.ReadJSON("handoffs/"+name, &h); err != nil {
			logging.SessionWarn("skipping unreadable handoff %s: %v", name, err)
			continue
		}
		summaries = append(summaries, HandoffSummary{
			ID:            h.ID,
			FromAgentType: h.Metadata.FromAgent.Type,
			Timestamp:     h.Metadata.Timestamp,
		})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Timestamp > summaries[j].Timestamp
	})
	return summaries, nil
}
