package gate

import (
	"context"
	"strings"
	"testing"
	"time"
)

// countingProvider records invocations and returns a fixed result.
type countingProvider struct {
	calls    int
	passed   bool
	message  string
	counters map[string]float64
	delay    time.Duration
}

func (p *countingProvider) Run(ctx context.Context, args []string, progress Observer) CheckResult {
	p.calls++
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
		}
	}
	return CheckResult{Passed: p.passed, Message: p.message, Counters: p.counters}
}

func newTestEvaluator(providers map[string]*countingProvider) *Evaluator {
	reg := NewRegistry()
	for name, p := range providers {
		reg.Register(name, p)
	}
	return &Evaluator{Registry: reg}
}

func TestEvaluateEmptyConditionPassesTrivially(t *testing.T) {
	e := newTestEvaluator(nil)
	out, err := e.Evaluate(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !out.Passed || len(out.Results) != 0 || len(out.Blockers) != 0 {
		t.Errorf("empty gate = %+v, want trivial pass with no atoms", out)
	}
}

func TestEvaluateParseErrorRunsNoChecks(t *testing.T) {
	tests := &countingProvider{passed: true}
	e := newTestEvaluator(map[string]*countingProvider{"tests": tests})
	_, err := e.Evaluate(context.Background(), "tests AND bogus_check")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if tests.calls != 0 {
		t.Errorf("provider invoked %d times despite parse error", tests.calls)
	}
}

// TestShortCircuitAnd tests that false AND X never invokes X's provider.
func TestShortCircuitAnd(t *testing.T) {
	lint := &countingProvider{passed: false, message: "3 issues"}
	tests := &countingProvider{passed: true}
	e := newTestEvaluator(map[string]*countingProvider{"lint": lint, "tests": tests})

	out, err := e.Evaluate(context.Background(), "lint AND tests")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if out.Passed {
		t.Error("expected failure")
	}
	if tests.calls != 0 {
		t.Errorf("right operand evaluated %d times, want 0", tests.calls)
	}
	if len(out.Results) != 1 {
		t.Errorf("results = %+v, want the single evaluated atom", out.Results)
	}
	if len(out.Blockers) != 1 || !strings.Contains(out.Blockers[0], "3 issues") {
		t.Errorf("blockers = %v", out.Blockers)
	}
}

// TestShortCircuitOr tests that true OR X never invokes X's provider.
func TestShortCircuitOr(t *testing.T) {
	override := &countingProvider{passed: true}
	tests := &countingProvider{passed: false}
	e := newTestEvaluator(map[string]*countingProvider{"manual_override": override, "tests": tests})

	out, err := e.Evaluate(context.Background(), "manual_override OR tests")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !out.Passed {
		t.Error("expected pass")
	}
	if tests.calls != 0 {
		t.Errorf("right operand evaluated %d times, want 0", tests.calls)
	}
	if len(out.Blockers) != 0 {
		t.Errorf("blockers = %v, want none", out.Blockers)
	}
}

func TestNotInvertsAndKeepsBlocker(t *testing.T) {
	lint := &countingProvider{passed: false, message: "broken"}
	e := newTestEvaluator(map[string]*countingProvider{"lint": lint})

	out, err := e.Evaluate(context.Background(), "NOT lint")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !out.Passed {
		t.Error("NOT over a failing check should pass")
	}
	// The failed atom still describes itself in results and blockers.
	if len(out.Results) != 1 || out.Results[0].Passed {
		t.Errorf("results = %+v", out.Results)
	}
	if len(out.Blockers) != 1 {
		t.Errorf("blockers = %v", out.Blockers)
	}
}

func TestEveryEvaluatedAtomRecorded(t *testing.T) {
	e := newTestEvaluator(map[string]*countingProvider{
		"typecheck": {passed: true},
		"tests":     {passed: true},
		"lint":      {passed: false, message: "nope"},
	})
	out, err := e.Evaluate(context.Background(), "typecheck AND tests AND lint")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if out.Passed {
		t.Error("expected failure")
	}
	if len(out.Results) != 3 {
		t.Errorf("results = %+v, want 3 atoms", out.Results)
	}
}

// Slow providers under a short total deadline produce a synthetic
// failed timeout atom and return promptly.
func TestTotalDeadlineTimeout(t *testing.T) {
	slow := &countingProvider{passed: true, delay: 10 * time.Second}
	e := newTestEvaluator(map[string]*countingProvider{
		"typecheck": slow,
		"tests":     {passed: true, delay: 10 * time.Second},
	})
	e.TotalDeadline = 300 * time.Millisecond

	start := time.Now()
	out, err := e.Evaluate(context.Background(), "typecheck AND tests")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("evaluation took %s, want under 2s", elapsed)
	}
	if out.Passed || !out.TimedOut {
		t.Errorf("out = %+v, want timed-out failure", out)
	}
	found := false
	for _, r := range out.Results {
		if r.Check == "timeout" && !r.Passed {
			found = true
		}
	}
	if !found {
		t.Errorf("results = %+v, want a failed timeout atom", out.Results)
	}
}

func TestThresholdReusesTestCounters(t *testing.T) {
	tests := &countingProvider{passed: true, counters: map[string]float64{"passed": 7, "failed": 0}}
	e := newTestEvaluator(map[string]*countingProvider{"tests": tests})

	out, err := e.Evaluate(context.Background(), "tests AND tests[passed] >= 5")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !out.Passed {
		t.Errorf("out = %+v, want pass", out)
	}
	if tests.calls != 1 {
		t.Errorf("tests provider ran %d times, want 1 (threshold reuses counters)", tests.calls)
	}
}

func TestThresholdRunsSuiteWhenNoPriorRun(t *testing.T) {
	tests := &countingProvider{passed: true, counters: map[string]float64{"passed": 2}}
	e := newTestEvaluator(map[string]*countingProvider{"tests": tests})

	out, err := e.Evaluate(context.Background(), "tests[passed] >= 5")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if out.Passed {
		t.Error("2 passed tests should not satisfy >= 5")
	}
	if tests.calls != 1 {
		t.Errorf("tests provider ran %d times, want 1", tests.calls)
	}
	if len(out.Blockers) != 1 || !strings.Contains(out.Blockers[0], "want >= 5") {
		t.Errorf("blockers = %v", out.Blockers)
	}
}

func TestEvidenceThresholdUsesCoverageCounter(t *testing.T) {
	coverage := &countingProvider{passed: true, counters: map[string]float64{"coverage": 62.5}}
	e := newTestEvaluator(map[string]*countingProvider{"evidence_coverage": coverage})

	out, err := e.Evaluate(context.Background(), "evidence[coverage] >= 50")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !out.Passed {
		t.Errorf("out = %+v, want pass at 62.5 >= 50", out)
	}

	out, err = e.Evaluate(context.Background(), "evidence[coverage] >= 90")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if out.Passed {
		t.Error("62.5 should not satisfy >= 90")
	}
}

func TestObserverReceivesProgress(t *testing.T) {
	e := newTestEvaluator(map[string]*countingProvider{
		"typecheck": {passed: true},
		"lint":      {passed: false, message: "broken"},
	})
	var msgs []string
	e.Observer = func(msg string) { msgs = append(msgs, msg) }

	if _, err := e.Evaluate(context.Background(), "typecheck AND lint"); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	joined := strings.Join(msgs, "\n")
	for _, want := range []string{"Running typecheck...", "[OK] typecheck", "[FAIL] lint"} {
		if !strings.Contains(joined, want) {
			t.Errorf("observer output missing %q:\n%s", want, joined)
		}
	}
}
