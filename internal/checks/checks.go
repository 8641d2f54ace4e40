// Package checks implements the concrete gate check providers: streamed
// subprocess checks (typecheck, tests, lint, custom commands) and pure
// filesystem checks over session artifacts (memory, traceability,
// evidence).
package checks

import (
	"time"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/config"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/gate"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/proc"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

// Timeouts are the per-check defaults, each bounded at run time by the
// remaining share of the gate's total deadline.
const (
	DefaultTypecheckTimeout = 60 * time.Second
	DefaultTestsTimeout     = 120 * time.Second
	DefaultLintTimeout      = 60 * time.Second
	DefaultCustomTimeout    = 30 * time.Second
)

// Deps carries everything the providers need: the session store for
// filesystem checks, a subprocess runner, the workspace commands run in,
// and the configured commands and timeouts.
type Deps struct {
	Store     *session.Store
	Runner    *proc.Runner
	Workspace string
	Gate      config.GateConfig
}

// RegisterAll binds every known check name to its provider. The facade
// calls this once per gate registry.
func RegisterAll(reg *gate.Registry, deps Deps) {
	if deps.Runner == nil {
		deps.Runner = &proc.Runner{}
	}
	g := deps.Gate
	if g.TypecheckTimeout <= 0 {
		g.TypecheckTimeout = DefaultTypecheckTimeout
	}
	if g.TestsTimeout <= 0 {
		g.TestsTimeout = DefaultTestsTimeout
	}
	if g.LintTimeout <= 0 {
		g.LintTimeout = DefaultLintTimeout
	}
	if g.CustomTimeout <= 0 {
		g.CustomTimeout = DefaultCustomTimeout
	}

	reg.Register("typecheck", &subprocessProvider{
		name:    "typecheck",
		runner:  deps.Runner,
		dir:     deps.Workspace,
		command: g.TypecheckCommand,
		detect:  detectTypecheckCommand,
		timeout: g.TypecheckTimeout,
		parse:   parseTypecheckOutput,
	})
	reg.Register("tests", &subprocessProvider{
		name:    "tests",
		runner:  deps.Runner,
		dir:     deps.Workspace,
		command: g.TestsCommand,
		detect:  detectTestCommand,
		timeout: g.TestsTimeout,
		parse:   parseTestsOutput,
	})
	reg.Register("lint", &subprocessProvider{
		name:    "lint",
		runner:  deps.Runner,
		dir:     deps.Workspace,
		command: g.LintCommand,
		detect:  detectLintCommand,
		timeout: g.LintTimeout,
		parse:   nil,
	})
	reg.Register("custom", &customProvider{
		runner:  deps.Runner,
		dir:     deps.Workspace,
		timeout: g.CustomTimeout,
	})
	reg.Register("manual_override", gate.ProviderFunc(manualOverride))
	reg.Register("memory", &memoryProvider{store: deps.Store})
	reg.Register("traceability", &traceabilityProvider{store: deps.Store})
	reg.Register("evidence_exists", &evidenceExistsProvider{store: deps.Store})
	reg.Register("evidence_coverage", &evidenceCoverageProvider{store: deps.Store})
}
