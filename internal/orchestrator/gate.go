package orchestrator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/gate"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
)

// GateOverride replaces a phase's own gateCondition for one check. A raw
// Condition wins; otherwise the set fields are ANDed together. Custom
// runs an arbitrary command through the custom provider, which the DSL
// itself does not expose.
type GateOverride struct {
	Condition string

	Typecheck bool
	Tests     bool
	Lint      bool
	Memory    string // glob over linked memory names
	Evidence  string // chain id that must exist
	Coverage  float64
	Custom    string // shell command, must exit 0
}

func (ov *GateOverride) empty() bool {
	return ov.Condition == "" && !ov.Typecheck && !ov.Tests && !ov.Lint &&
		ov.Memory == "" && ov.Evidence == "" && ov.Coverage == 0 && ov.Custom == ""
}

// expr renders the structured fields as a conjunction.
func (ov *GateOverride) expr() gate.Expr {
	var atoms []gate.Expr
	if ov.Typecheck {
		atoms = append(atoms, &gate.CheckExpr{Name: "typecheck"})
	}
	if ov.Tests {
		atoms = append(atoms, &gate.CheckExpr{Name: "tests"})
	}
	if ov.Lint {
		atoms = append(atoms, &gate.CheckExpr{Name: "lint"})
	}
	if ov.Memory != "" {
		atoms = append(atoms, &gate.CheckExpr{Name: "memory", Args: []string{ov.Memory}})
	}
	if ov.Evidence != "" {
		atoms = append(atoms, &gate.CheckExpr{Name: "evidence_exists", Args: []string{ov.Evidence}})
	}
	if ov.Coverage > 0 {
		atoms = append(atoms, &gate.CheckExpr{
			Name: "evidence_coverage",
			Args: []string{strconv.FormatFloat(ov.Coverage, 'f', -1, 64)},
		})
	}
	if ov.Custom != "" {
		atoms = append(atoms, &gate.CheckExpr{Name: "custom", Args: []string{ov.Custom}})
	}
	expr := atoms[0]
	for _, atom := range atoms[1:] {
		expr = &gate.AndExpr{Left: expr, Right: atom}
	}
	return expr
}

// CheckGate evaluates a phase's advancement condition and persists the
// result. The observer, when non-nil, receives progress lines.
func (o *Orchestrator) CheckGate(ctx context.Context, phaseID string, override *GateOverride, observer gate.Observer) (*schema.GateResult, error) {
	plan, err := o.currentPlan()
	if err != nil {
		return nil, err
	}
	phase := plan.FindPhase(phaseID)
	if phase == nil {
		return nil, fmt.Errorf("plan %s has no phase %q", plan.ID, phaseID)
	}

	ev := &gate.Evaluator{
		Registry:      o.registry,
		TotalDeadline: o.cfg.Gate.TotalDeadline,
		Observer:      observer,
	}

	var outcome *gate.Outcome
	switch {
	case override != nil && override.Condition != "":
		outcome, err = ev.Evaluate(ctx, override.Condition)
	case override != nil && !override.empty():
		outcome = ev.EvaluateExpr(ctx, override.expr())
	default:
		outcome, err = ev.Evaluate(ctx, phase.GateCondition)
	}
	if err != nil {
		return nil, err
	}

	result := &schema.GateResult{
		PhaseID:  phaseID,
		Passed:   outcome.Passed,
		Results:  outcome.Results,
		Blockers: outcome.Blockers,
		Duration: outcome.Duration.Milliseconds(),
	}
	if err := o.repos.Gates.Write(result); err != nil {
		return nil, err
	}
	o.mirrorArtifact("gate", phaseID, result)
	logging.Gate("phase %s gate: passed=%v blockers=%d", phaseID, result.Passed, len(result.Blockers))
	return result, nil
}

// AdvancePhase checks the phase gate and, on pass, moves orchestrator
// state to the next phase (or the completion sentinel). On failure the
// gate result is persisted, state stays untouched, and the blockers come
// back in the result.
func (o *Orchestrator) AdvancePhase(ctx context.Context, phaseID string, override *GateOverride, observer gate.Observer) (*schema.GateResult, error) {
	result, err := o.CheckGate(ctx, phaseID, override, observer)
	if err != nil {
		return nil, err
	}
	if !result.Passed {
		logging.Gate("phase %s not advanced: %d blocker(s)", phaseID, len(result.Blockers))
		return result, nil
	}

	plan, err := o.currentPlan()
	if err != nil {
		return nil, err
	}
	st, err := o.repos.State.ReadOrInit()
	if err != nil {
		return nil, err
	}

	if next := plan.NextPhase(phaseID); next != nil {
		st.CurrentPhase = schema.PhaseRef{ID: next.ID, Name: next.Name, Progress: 0}
		st.Status = schema.StatusRunning
	} else {
		st.CurrentPhase = schema.CompletePhase()
		st.Status = schema.StatusCompleted
	}
	if err := o.WriteState(st); err != nil {
		return nil, err
	}
	if err := o.store.AppendHistory("phase_advanced", phaseID); err != nil {
		return nil, err
	}
	logging.Gate("phase %s advanced to %s", phaseID, st.CurrentPhase.ID)
	return result, nil
}

// GateResult returns the latest persisted gate result for a phase.
func (o *Orchestrator) GateResult(phaseID string) (*schema.GateResult, error) {
	return o.repos.Gates.Read(phaseID)
}

// GateHistory lists persisted gate result filenames, newest first,
// optionally filtered by phase.
func (o *Orchestrator) GateHistory(phaseID string) ([]string, error) {
	return o.repos.Gates.List(phaseID)
}
