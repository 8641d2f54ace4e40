package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/schema"
)

// DefaultTotalDeadline bounds one whole gate evaluation.
const DefaultTotalDeadline = 180 * time.Second

// Outcome is the result of evaluating one gate expression.
type Outcome struct {
	Passed   bool
	Results  []schema.GateCheckResult
	Blockers []string
	TimedOut bool
	Duration time.Duration
}

// Evaluator walks a parsed gate expression, invoking providers with
// short-circuit semantics under a single total deadline.
type Evaluator struct {
	Registry      *Registry
	TotalDeadline time.Duration
	Observer      Observer
}

// Evaluate parses and evaluates a gate expression source. A blank source
// means "no gate": it passes trivially with no atoms recorded. Parse
// errors are returned without running any check.
func (e *Evaluator) Evaluate(ctx context.Context, source string) (*Outcome, error) {
	if strings.TrimSpace(source) == "" {
		return &Outcome{Passed: true, Results: []schema.GateCheckResult{}, Blockers: []string{}}, nil
	}
	expr, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return e.EvaluateExpr(ctx, expr), nil
}

// EvaluateExpr evaluates an already-parsed expression.
func (e *Evaluator) EvaluateExpr(ctx context.Context, expr Expr) *Outcome {
	deadline := e.TotalDeadline
	if deadline <= 0 {
		deadline = DefaultTotalDeadline
	}
	evalCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	s := &evalState{
		ctx:      evalCtx,
		registry: e.Registry,
		observer: e.Observer,
		deadline: deadline,
		counters: make(map[string]map[string]float64),
	}

	start := time.Now()
	passed := s.eval(expr)
	out := &Outcome{
		Passed:   passed && !s.timedOut,
		Results:  s.results,
		Blockers: s.blockers,
		TimedOut: s.timedOut,
		Duration: time.Since(start),
	}
	if out.Results == nil {
		out.Results = []schema.GateCheckResult{}
	}
	if out.Blockers == nil {
		out.Blockers = []string{}
	}
	logging.Gate("evaluated %q: passed=%v atoms=%d in %s",
		expr.Source(), out.Passed, len(out.Results), out.Duration.Round(time.Millisecond))
	return out
}

type evalState struct {
	ctx      context.Context
	registry *Registry
	observer Observer
	deadline time.Duration
	counters map[string]map[string]float64
	results  []schema.GateCheckResult
	blockers []string
	timedOut bool
}

func (s *evalState) emit(format string, args ...any) {
	if s.observer != nil {
		s.observer(fmt.Sprintf(format, args...))
	}
}

// eval walks the tree. Once the deadline fires, a synthetic timeout atom
// is recorded and every remaining sub-expression is skipped.
func (s *evalState) eval(expr Expr) bool {
	if s.timedOut {
		return false
	}
	switch e := expr.(type) {
	case *AndExpr:
		if !s.eval(e.Left) {
			return false
		}
		return s.eval(e.Right)
	case *OrExpr:
		if s.eval(e.Left) {
			return true
		}
		if s.timedOut {
			return false
		}
		return s.eval(e.Right)
	case *NotExpr:
		ok := s.eval(e.Expr)
		if s.timedOut {
			return false
		}
		return !ok
	case *CheckExpr:
		return s.evalCheck(e)
	case *ThresholdExpr:
		return s.evalThreshold(e)
	}
	return false
}

// expired records the synthetic timeout atom the first time the total
// deadline is observed to have elapsed.
func (s *evalState) expired() bool {
	if s.timedOut {
		return true
	}
	if s.ctx.Err() == nil {
		return false
	}
	s.timedOut = true
	msg := fmt.Sprintf("gate evaluation timed out (>%ds)", int(s.deadline.Seconds()))
	s.results = append(s.results, schema.GateCheckResult{Check: "timeout", Passed: false, Message: msg})
	s.blockers = append(s.blockers, msg)
	s.emit("  [FAIL] timeout: %s", msg)
	logging.GateWarn("%s", msg)
	return true
}

func (s *evalState) record(res CheckResult) bool {
	s.results = append(s.results, schema.GateCheckResult{
		Check:   res.Check,
		Passed:  res.Passed,
		Message: res.Message,
	})
	if len(res.Counters) > 0 {
		s.counters[res.Check] = res.Counters
	}
	if res.Passed {
		s.emit("  [OK] %s", res.Check)
	} else {
		blocker := res.Check
		if res.Message != "" {
			blocker = res.Check + ": " + res.Message
			s.emit("  [FAIL] %s: %s", res.Check, res.Message)
		} else {
			s.emit("  [FAIL] %s", res.Check)
		}
		s.blockers = append(s.blockers, blocker)
	}
	return res.Passed
}

func (s *evalState) evalCheck(e *CheckExpr) bool {
	if s.expired() {
		return false
	}
	s.emit("Running %s...", e.Source())
	res := s.run(e.Name, e.Args)
	res.Check = e.Source()
	if s.expired() {
		return false
	}
	return s.record(res)
}

func (s *evalState) run(name string, args []string) CheckResult {
	provider, ok := s.registry.Lookup(name)
	if !ok {
		return CheckResult{Check: name, Passed: false, Message: fmt.Sprintf("no provider registered for %s", name)}
	}
	return provider.Run(s.ctx, args, s.observer)
}

// evalThreshold handles the bracketed comparison form. The tests subject
// reuses counters from a tests check already run in this evaluation;
// otherwise the suite runs here.
func (s *evalState) evalThreshold(e *ThresholdExpr) bool {
	if s.expired() {
		return false
	}
	source := e.Source()

	var counterCheck, counterKey string
	switch e.Subject {
	case "evidence":
		counterCheck, counterKey = "evidence_coverage", "coverage"
	case "tests":
		counterCheck, counterKey = "tests", e.Field
	default:
		return s.record(CheckResult{Check: source, Passed: false,
			Message: fmt.Sprintf("unknown threshold subject %s", e.Subject)})
	}

	counters, ok := s.counters[counterCheck]
	if !ok {
		s.emit("Running %s...", source)
		res := s.run(counterCheck, nil)
		if s.expired() {
			return false
		}
		if res.Counters == nil {
			res.Check = source
			if res.Message == "" {
				res.Message = fmt.Sprintf("%s reported no %s counter", counterCheck, counterKey)
			}
			res.Passed = false
			return s.record(res)
		}
		s.counters[counterCheck] = res.Counters
		counters = res.Counters
	}

	observed, ok := counters[counterKey]
	if !ok {
		return s.record(CheckResult{Check: source, Passed: false,
			Message: fmt.Sprintf("%s reported no %s counter", counterCheck, counterKey)})
	}

	passed := e.Compare(observed)
	message := ""
	if !passed {
		message = fmt.Sprintf("%s is %s, want %s %s",
			counterKey, formatNumber(observed), e.Op, formatNumber(e.Value))
	}
	return s.record(CheckResult{Check: source, Passed: passed, Message: message})
}
