// Package proc runs external commands for gate checks: streamed output,
// bounded capture, and a hard deadline that kills the process.
package proc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
)

// DefaultMaxOutputBytes caps captured output per stream.
const DefaultMaxOutputBytes = 1 << 20

// Command describes one subprocess invocation. Argv form runs without a
// shell; Shell runs the string through "sh -c" and is reserved for
// user-supplied custom checks.
type Command struct {
	Binary  string
	Args    []string
	Shell   string
	Dir     string
	Timeout time.Duration
}

// String renders the invocation for logs and messages.
func (c Command) String() string {
	if c.Shell != "" {
		return c.Shell
	}
	if len(c.Args) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of one completed (or killed) subprocess.
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Killed    bool
	Duration  time.Duration
	Truncated bool
}

// Combined joins stdout and stderr for parsers that look at both.
func (r *Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// OutputLine is called once per line of subprocess output as it arrives.
type OutputLine func(line string)

// Runner executes commands with streaming capture. The zero value is
// usable; MaxOutputBytes falls back to the default.
type Runner struct {
	MaxOutputBytes int64
}

// Run executes cmd and waits for it to finish or for the deadline. A
// killed process is not an error: the Result reports Killed=true and the
// exit code of the killed process. onLine may be nil.
func (r *Runner) Run(ctx context.Context, cmd Command, onLine OutputLine) (*Result, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd, err := r.build(runCtx, cmd)
	if err != nil {
		return nil, err
	}

	stdout, err := execCmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := execCmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	logging.Proc("running: %s (timeout %s)", cmd, timeout)
	start := time.Now()
	if err := execCmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Binary, err)
	}

	max := r.MaxOutputBytes
	if max <= 0 {
		max = DefaultMaxOutputBytes
	}
	outBuf := &limitedBuffer{max: max}
	errBuf := &limitedBuffer{max: max}

	// Both pipes must be drained before Wait; a stalled pump would
	// otherwise deadlock the child on a full pipe.
	var g errgroup.Group
	g.Go(func() error { return pump(stdout, outBuf, onLine) })
	g.Go(func() error { return pump(stderr, errBuf, onLine) })
	pumpErr := g.Wait()

	waitErr := execCmd.Wait()
	result := &Result{
		ExitCode:  0,
		Stdout:    outBuf.String(),
		Stderr:    errBuf.String(),
		Duration:  time.Since(start),
		Truncated: outBuf.truncated || errBuf.truncated,
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.Killed = true
		result.ExitCode = -1
		logging.ProcWarn("killed after %s: %s", timeout, cmd)
		return result, nil
	}
	if ctx.Err() != nil {
		result.Killed = true
		result.ExitCode = -1
		logging.ProcDebug("canceled: %s", cmd)
		return result, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			logging.ProcDebug("exit %d: %s", result.ExitCode, cmd)
		} else {
			return nil, fmt.Errorf("run %s: %w", cmd.Binary, waitErr)
		}
	}
	if pumpErr != nil {
		logging.ProcWarn("output pump: %v", pumpErr)
	}
	if result.ExitCode == 0 {
		logging.ProcDebug("exit 0 in %s: %s", result.Duration.Round(time.Millisecond), cmd)
	}
	return result, nil
}

func (r *Runner) build(ctx context.Context, cmd Command) (*exec.Cmd, error) {
	var execCmd *exec.Cmd
	switch {
	case cmd.Shell != "":
		execCmd = exec.CommandContext(ctx, "sh", "-c", cmd.Shell)
	case cmd.Binary != "":
		execCmd = exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	default:
		return nil, errors.New("empty command")
	}
	execCmd.Dir = cmd.Dir
	// Kill the whole process, not just the shell, when the deadline hits.
	execCmd.WaitDelay = time.Second
	return execCmd, nil
}

// pump copies a stream line by line into buf, invoking onLine per line.
func pump(src io.Reader, buf *limitedBuffer, onLine OutputLine) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteLine(line)
		if onLine != nil {
			onLine(line)
		}
	}
	err := scanner.Err()
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

// limitedBuffer accumulates lines up to max bytes, then drops the rest.
type limitedBuffer struct {
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func (b *limitedBuffer) WriteLine(line string) {
	if int64(b.buf.Len())+int64(len(line))+1 > b.max {
		b.truncated = true
		return
	}
	if b.buf.Len() > 0 {
		b.buf.WriteByte('\n')
	}
	b.buf.WriteString(line)
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
