package artifact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

const gatePrefix = "gate-"

// GateRepo records gate check outcomes: a timestamped canonical file per
// check plus an overwritten -latest snapshot for fast reads.
type GateRepo struct {
	store    *session.Store
	registry *schema.Registry
}

// Write persists a gate result and refreshes the phase's latest
// snapshot.
func (r *GateRepo) Write(res *schema.GateResult) error {
	if res.CheckedAt == "" {
		res.CheckedAt = schema.Now()
	}
	if res.Results == nil {
		res.Results = []schema.GateCheckResult{}
	}
	if res.Blockers == nil {
		res.Blockers = []string{}
	}
	if err := r.registry.Validate(schema.KindGate, res); err != nil {
		return err
	}

	canonical := fmt.Sprintf("gates/%s%s-%s.json",
		gatePrefix, res.PhaseID, schema.SanitizeTimestamp(res.CheckedAt))
	if err := r.store.WriteJSON(canonical, res); err != nil {
		return err
	}
	if err := r.store.WriteJSON(r.latestPath(res.PhaseID), res); err != nil {
		return err
	}
	if err := r.store.AppendHistory("gate", res.PhaseID); err != nil {
		return err
	}
	logging.Gate("recorded gate result for phase %s: passed=%v", res.PhaseID, res.Passed)
	return nil
}

// Read returns the latest recorded result for a phase.
func (r *GateRepo) Read(phaseID string) (*schema.GateResult, error) {
	var res schema.GateResult
	if err := r.store.ReadJSON(r.latestPath(phaseID), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// List returns the canonical gate record filenames, newest first,
// optionally filtered to one phase.
func (r *GateRepo) List(phaseID string) ([]string, error) {
	prefix := gatePrefix
	if phaseID != "" {
		prefix = gatePrefix + phaseID + "-"
	}
	names, err := r.store.ListDir("gates", func(name string) bool {
		return strings.HasPrefix(name, prefix) &&
			strings.HasSuffix(name, ".json") &&
			!strings.HasSuffix(name, "-latest.json")
	})
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (r *GateRepo) latestPath(phaseID string) string {
	return "gates/" + gatePrefix + phaseID + "-latest.json"
}

// HasResult reports whether any result was ever recorded for the phase.
func (r *GateRepo) HasResult(phaseID string) bool {
	if r.store.Exists(r.latestPath(phaseID)) {
		return true
	}
	names, err := r.List(phaseID)
	return err == nil && len(names) > 0
}
