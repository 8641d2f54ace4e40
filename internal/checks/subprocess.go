package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/gate"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/proc"
)

// outputParser distills a terse failure message and optional counters
// from a finished run.
type outputParser func(res *proc.Result) (message string, counters map[string]float64)

// subprocessProvider runs one configured (or detected) command without a
// shell and reports pass/fail from its exit code.
type subprocessProvider struct {
	name    string
	runner  *proc.Runner
	dir     string
	command string
	detect  func(workspace string) string
	timeout time.Duration
	parse   outputParser
}

func (p *subprocessProvider) Run(ctx context.Context, args []string, progress gate.Observer) gate.CheckResult {
	command := p.command
	if command == "" && p.detect != nil {
		command = p.detect(p.dir)
	}
	if command == "" {
		return gate.CheckResult{Check: p.name, Passed: false,
			Message: fmt.Sprintf("no %s command configured", p.name)}
	}

	fields := strings.Fields(command)
	res, err := p.runner.Run(ctx, proc.Command{
		Binary:  fields[0],
		Args:    fields[1:],
		Dir:     p.dir,
		Timeout: p.timeout,
	}, streamTo(progress))
	if err != nil {
		return gate.CheckResult{Check: p.name, Passed: false, Message: err.Error()}
	}
	return p.finish(command, res)
}

func (p *subprocessProvider) finish(command string, res *proc.Result) gate.CheckResult {
	result := gate.CheckResult{Check: p.name}
	if res.Killed {
		result.Message = fmt.Sprintf("timed out (>%ds)", int(p.timeout.Seconds()))
		return result
	}

	var counters map[string]float64
	message := ""
	if p.parse != nil {
		message, counters = p.parse(res)
	}
	result.Counters = counters

	if res.ExitCode == 0 {
		result.Passed = true
		logging.Gate("%s passed: %s", p.name, command)
		return result
	}
	if message == "" {
		message = fmt.Sprintf("%s exited %d", command, res.ExitCode)
	}
	result.Message = message
	logging.Gate("%s failed: %s", p.name, message)
	return result
}

// customProvider runs a user-supplied command string through a shell.
// It is reachable only via structured validation overrides, never from a
// parsed gate expression.
type customProvider struct {
	runner  *proc.Runner
	dir     string
	timeout time.Duration
}

func (p *customProvider) Run(ctx context.Context, args []string, progress gate.Observer) gate.CheckResult {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return gate.CheckResult{Check: "custom", Passed: false, Message: "no command given"}
	}
	command := strings.Join(args, " ")
	res, err := p.runner.Run(ctx, proc.Command{
		Shell:   command,
		Dir:     p.dir,
		Timeout: p.timeout,
	}, streamTo(progress))
	if err != nil {
		return gate.CheckResult{Check: "custom", Passed: false, Message: err.Error()}
	}
	if res.Killed {
		return gate.CheckResult{Check: "custom", Passed: false,
			Message: fmt.Sprintf("timed out (>%ds)", int(p.timeout.Seconds()))}
	}
	if res.ExitCode != 0 {
		return gate.CheckResult{Check: "custom", Passed: false,
			Message: fmt.Sprintf("%s exited %d", command, res.ExitCode)}
	}
	return gate.CheckResult{Check: "custom", Passed: true}
}

// streamTo forwards subprocess lines to the evaluation observer.
func streamTo(progress gate.Observer) proc.OutputLine {
	if progress == nil {
		return nil
	}
	return func(line string) {
		progress("    " + line)
	}
}

// Command detection by project marker, checked in order.

func detectTypecheckCommand(workspace string) string {
	return detectCommand(workspace, []marker{
		{"tsconfig.json", "npx tsc --noEmit"},
		{"package.json", "npm run typecheck"},
		{"go.mod", "go vet ./..."},
		{"pyproject.toml", "mypy ."},
	}, "npm run typecheck")
}

func detectTestCommand(workspace string) string {
	return detectCommand(workspace, []marker{
		{"package.json", "npm test -- --run"},
		{"go.mod", "go test ./..."},
		{"Cargo.toml", "cargo test"},
		{"pyproject.toml", "pytest"},
		{"requirements.txt", "pytest"},
		{"Makefile", "make test"},
	}, "npm test -- --run")
}

func detectLintCommand(workspace string) string {
	return detectCommand(workspace, []marker{
		{"package.json", "npm run lint"},
		{"go.mod", "go vet ./..."},
		{"Cargo.toml", "cargo clippy"},
		{"Makefile", "make lint"},
	}, "")
}

type marker struct {
	file    string
	command string
}

func detectCommand(workspace string, markers []marker, fallback string) string {
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(workspace, m.file)); err == nil {
			return m.command
		}
	}
	return fallback
}

// Well-known failure shapes.

var (
	// tsc summary: "Found 3 errors in 2 files."
	foundErrorsRe = regexp.MustCompile(`Found (\d+) errors?`)
	// vitest/jest summaries: "Tests  3 failed | 12 passed (15)"
	testsFailedRe = regexp.MustCompile(`(\d+) failed`)
	testsPassedRe = regexp.MustCompile(`(\d+) passed`)
)

func parseTypecheckOutput(res *proc.Result) (string, map[string]float64) {
	if m := foundErrorsRe.FindStringSubmatch(res.Combined()); m != nil {
		return "Found " + m[1] + " errors", nil
	}
	return "", nil
}

// parseTestsOutput counts passed and failed tests from the runner's
// output so threshold checks like tests[passed] >= N have a number to
// compare against.
func parseTestsOutput(res *proc.Result) (string, map[string]float64) {
	passed, failed := countTests(res.Combined())
	if passed == 0 && failed == 0 && res.ExitCode == 0 {
		// Quiet runners print nothing on success; a crashed suite
		// must not count as a pass.
		passed = 1
	}
	counters := map[string]float64{
		"passed": float64(passed),
		"failed": float64(failed),
	}
	if failed > 0 {
		return fmt.Sprintf("%d tests failed", failed), counters
	}
	return "", counters
}

// countTests handles go test verbose output and the summary lines of
// npm test runners. Zero/zero means nothing countable was printed.
func countTests(output string) (passed, failed int) {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "--- PASS"):
			passed++
		case strings.HasPrefix(trimmed, "--- FAIL"):
			failed++
		}
	}
	if passed > 0 || failed > 0 {
		return passed, failed
	}
	if m := testsFailedRe.FindStringSubmatch(output); m != nil {
		fmt.Sscanf(m[1], "%d", &failed)
	}
	if m := testsPassedRe.FindStringSubmatch(output); m != nil {
		fmt.Sscanf(m[1], "%d", &passed)
	}
	return passed, failed
}
