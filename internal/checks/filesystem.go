package checks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/gate"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

// manualOverride is the escape hatch: it always passes.
func manualOverride(ctx context.Context, args []string, progress gate.Observer) gate.CheckResult {
	return gate.CheckResult{Check: "manual_override", Passed: true, Message: "manually overridden"}
}

// memoryProvider passes when at least one linked memory filename matches
// the glob argument.
type memoryProvider struct {
	store *session.Store
}

func (p *memoryProvider) Run(ctx context.Context, args []string, progress gate.Observer) gate.CheckResult {
	if len(args) == 0 {
		return gate.CheckResult{Check: "memory", Passed: false, Message: "memory check needs a glob argument"}
	}
	pattern := args[0]
	names, err := p.store.ListDir("memories", nil)
	if err != nil {
		return gate.CheckResult{Check: "memory", Passed: false, Message: err.Error()}
	}
	for _, name := range names {
		if globMatch(pattern, name) || globMatch(pattern, strings.TrimSuffix(name, ".json")) {
			return gate.CheckResult{Check: "memory", Passed: true,
				Message: fmt.Sprintf("matched %s", name)}
		}
	}
	return gate.CheckResult{Check: "memory", Passed: false,
		Message: fmt.Sprintf("no memory matches %s", pattern)}
}

// globMatch applies *-wildcard matching; a malformed pattern matches
// nothing.
func globMatch(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}

// traceabilityProvider passes when some linked memory carries a
// non-empty traceabilityData field of the given name.
type traceabilityProvider struct {
	store *session.Store
}

func (p *traceabilityProvider) Run(ctx context.Context, args []string, progress gate.Observer) gate.CheckResult {
	if len(args) == 0 {
		return gate.CheckResult{Check: "traceability", Passed: false, Message: "traceability check needs a field argument"}
	}
	field := args[0]
	names, err := p.store.ListDir("memories", isJSON)
	if err != nil {
		return gate.CheckResult{Check: "traceability", Passed: false, Message: err.Error()}
	}
	for _, name := range names {
		var mem schema.LinkedMemory
		if err := p.store.ReadJSON("memories/"+name, &mem); err != nil {
			logging.GateWarn("skipping malformed memory %s: %v", name, err)
			continue
		}
		if mem.TraceabilityData.FieldNonEmpty(field) {
			return gate.CheckResult{Check: "traceability", Passed: true,
				Message: fmt.Sprintf("%s has %s", mem.MemoryName, field)}
		}
	}
	return gate.CheckResult{Check: "traceability", Passed: false,
		Message: fmt.Sprintf("no linked memory has traceability %s", field)}
}

// evidenceExistsProvider passes when the chain's file exists.
type evidenceExistsProvider struct {
	store *session.Store
}

func (p *evidenceExistsProvider) Run(ctx context.Context, args []string, progress gate.Observer) gate.CheckResult {
	if len(args) == 0 {
		return gate.CheckResult{Check: "evidence_exists", Passed: false, Message: "evidence_exists check needs a chain id"}
	}
	chainID := args[0]
	if p.store.Exists("evidence/" + chainID + ".json") {
		return gate.CheckResult{Check: "evidence_exists", Passed: true}
	}
	return gate.CheckResult{Check: "evidence_exists", Passed: false,
		Message: fmt.Sprintf("no evidence chain %s", chainID)}
}

// evidenceCoverageProvider averages coveragePercent across every chain.
// Malformed chain files are skipped with a warning. The mean is also
// reported as a counter for the evidence[coverage] threshold form.
type evidenceCoverageProvider struct {
	store *session.Store
}

func (p *evidenceCoverageProvider) Run(ctx context.Context, args []string, progress gate.Observer) gate.CheckResult {
	threshold := 0.0
	if len(args) > 0 {
		if _, err := fmt.Sscanf(args[0], "%f", &threshold); err != nil {
			return gate.CheckResult{Check: "evidence_coverage", Passed: false,
				Message: fmt.Sprintf("invalid threshold %q", args[0])}
		}
	}

	names, err := p.store.ListDir("evidence", isJSON)
	if err != nil {
		return gate.CheckResult{Check: "evidence_coverage", Passed: false, Message: err.Error()}
	}

	total, count := 0.0, 0
	for _, name := range names {
		var chain schema.EvidenceChain
		if err := p.store.ReadJSON("evidence/"+name, &chain); err != nil {
			logging.GateWarn("skipping malformed evidence chain %s: %v", name, err)
			continue
		}
		total += chain.CoveragePercent
		count++
	}
	if count == 0 {
		return gate.CheckResult{Check: "evidence_coverage", Passed: false, Message: "no evidence chains"}
	}

	mean := total / float64(count)
	result := gate.CheckResult{
		Check:    "evidence_coverage",
		Passed:   mean >= threshold,
		Counters: map[string]float64{"coverage": mean},
	}
	if !result.Passed {
		result.Message = fmt.Sprintf("coverage %.1f%% below %.1f%%", mean, threshold)
	}
	return result
}

func isJSON(name string) bool {
	return strings.HasSuffix(name, ".json")
}
