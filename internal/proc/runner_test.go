package proc

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunCapturesStdout(t *testing.T) {
	r := &Runner{}
	res, err := r.Run(context.Background(), Command{
		Binary:  "echo",
		Args:    []string{"hello"},
		Timeout: 5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 0 || res.Killed {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Stdout != "hello" {
		t.Errorf("Stdout = %q, want hello", res.Stdout)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	r := &Runner{}
	res, err := r.Run(context.Background(), Command{
		Shell:   "exit 3",
		Timeout: 5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 3 || res.Killed {
		t.Errorf("ExitCode = %d killed=%v, want 3/false", res.ExitCode, res.Killed)
	}
}

// TestRunKillsOnDeadline tests that a sleeping process is killed and the
// call returns promptly after the timeout.
func TestRunKillsOnDeadline(t *testing.T) {
	r := &Runner{}
	start := time.Now()
	res, err := r.Run(context.Background(), Command{
		Binary:  "sleep",
		Args:    []string{"10"},
		Timeout: 200 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Killed {
		t.Error("expected Killed=true")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("kill took %s, want well under 3s", elapsed)
	}
}

func TestRunStreamsLines(t *testing.T) {
	r := &Runner{}
	var lines []string
	_, err := r.Run(context.Background(), Command{
		Shell:   "echo one; echo two 1>&2; echo three",
		Timeout: 5 * time.Second,
	}, func(line string) { lines = append(lines, line) })
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	seen := map[string]bool{}
	for _, l := range lines {
		seen[l] = true
	}
	for _, want := range []string{"one", "two", "three"} {
		if !seen[want] {
			t.Errorf("missing streamed line %q in %v", want, lines)
		}
	}
}

func TestRunTruncatesOutput(t *testing.T) {
	r := &Runner{MaxOutputBytes: 64}
	res, err := r.Run(context.Background(), Command{
		Shell:   "for i in $(seq 1 50); do echo line-$i; done",
		Timeout: 5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Truncated {
		t.Error("expected Truncated=true")
	}
	if len(res.Stdout) > 64 {
		t.Errorf("Stdout length %d exceeds cap", len(res.Stdout))
	}
}

func TestRunEmptyCommand(t *testing.T) {
	r := &Runner{}
	if _, err := r.Run(context.Background(), Command{}, nil); err == nil {
		t.Error("expected an error for an empty command")
	}
}

func TestCommandString(t *testing.T) {
	cases := []struct {
		cmd  Command
		want string
	}{
		{Command{Binary: "npm", Args: []string{"run", "typecheck"}}, "npm run typecheck"},
		{Command{Binary: "true"}, "true"},
		{Command{Shell: "make lint && make vet"}, "make lint && make vet"},
	}
	for _, tc := range cases {
		if got := tc.cmd.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
	if !strings.Contains((Command{Shell: "x"}).String(), "x") {
		t.Error("shell command string lost its body")
	}
}
