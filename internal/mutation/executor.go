package mutation

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mutesthq/mutest/internal/sandbox"
)

const (
	// setupAttempts bounds retries of sandbox creation and file writes.
	setupAttempts = 3

	// outputTailLimit caps how much test output is kept per run.
	outputTailLimit = 4096

	// fragmentSearchRadius bounds how far from the recorded column a
	// fragment may drift and still be substituted.
	fragmentSearchRadius = 20
)

// ExecOptions describes one test run environment.
type ExecOptions struct {
	// TestCommand is run through the shell with the sandbox as cwd.
	TestCommand string

	// Timeout is the per-run deadline. Zero means the default.
	Timeout time.Duration

	// Filename is the path, relative to the sandbox root, the mutated
	// source is written to.
	Filename string

	// ProjectDir, when set, is copied into the sandbox before the
	// mutated source is written so project-level test commands work.
	ProjectDir string
}

// Executor materializes mutants into sandboxes and classifies the
// resulting test runs.
type Executor struct {
	sandboxes *sandbox.Manager
}

// NewExecutor returns an Executor creating sandboxes through m.
func NewExecutor(m *sandbox.Manager) *Executor {
	return &Executor{sandboxes: m}
}

// Execute applies one mutant to source, runs the test command against it
// in a fresh sandbox, and classifies the run. The sandbox is always
// removed before Execute returns. Execute never returns an error;
// failures are folded into the Outcome so a broken mutant cannot stop
// the run of its siblings.
func (e *Executor) Execute(ctx context.Context, source string, m Mutant, opts ExecOptions) Outcome {
	mutated, err := ApplyMutant(source, m)
	if err != nil {
		return Outcome{Status: ResultError, Message: err.Error()}
	}

	wd, err := e.materialize(opts.ProjectDir, opts.Filename, mutated)
	if err != nil {
		return Outcome{Status: ResultError, Message: err.Error()}
	}
	defer wd.Remove()

	return e.run(ctx, wd.Path(), opts)
}

// Baseline runs the unmutated source through the test command once. A
// failing baseline would make every mutant look killed, so callers
// refuse the run when this errors.
func (e *Executor) Baseline(ctx context.Context, source string, opts ExecOptions) error {
	wd, err := e.materialize(opts.ProjectDir, opts.Filename, source)
	if err != nil {
		return err
	}
	defer wd.Remove()

	outcome := e.run(ctx, wd.Path(), opts)
	switch outcome.Status {
	case ResultSurvived:
		return nil
	case ResultTimeout:
		return fmt.Errorf("baseline test run timed out: %s", outcome.Message)
	case ResultSkipped:
		return context.Canceled
	default:
		msg := outcome.Message
		if msg == "" {
			msg = strings.TrimSpace(outcome.Output)
		}
		if msg == "" {
			return errors.New("baseline test run failed")
		}
		return fmt.Errorf("baseline test run failed: %s", msg)
	}
}

// materialize prepares a sandbox holding the source under test. Setup
// faults are infrastructure trouble, not mutant verdicts, so they are
// retried a few times before giving up.
func (e *Executor) materialize(projectDir, filename, content string) (*sandbox.Workdir, error) {
	if filename == "" {
		filename = "source.txt"
	}

	var lastErr error
	for attempt := 0; attempt < setupAttempts; attempt++ {
		wd, err := e.sandboxes.Create()
		if err != nil {
			lastErr = err
			continue
		}
		if projectDir != "" {
			if err := wd.CopyTree(projectDir); err != nil {
				wd.Remove()
				lastErr = fmt.Errorf("copying project tree: %w", err)
				continue
			}
		}
		if _, err := wd.WriteFile(filename, content); err != nil {
			wd.Remove()
			lastErr = err
			continue
		}
		return wd, nil
	}
	return nil, fmt.Errorf("preparing sandbox: %w", lastErr)
}

// run executes the test command in dir and classifies the exit.
func (e *Executor) run(ctx context.Context, dir string, opts ExecOptions) Outcome {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout()
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", opts.TestCommand)
	cmd.Dir = dir
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	out := tail(output, outputTailLimit)

	switch {
	case ctx.Err() != nil:
		// The caller tore the run down; this is not a verdict on the
		// mutant. No duration is recorded.
		return Outcome{Status: ResultSkipped, Output: out, Message: "run cancelled"}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return Outcome{
			Status:   ResultTimeout,
			Duration: timeout,
			Output:   out,
			Message:  fmt.Sprintf("test run exceeded %s", timeout),
		}
	case err == nil:
		return Outcome{Status: ResultSurvived, Duration: elapsed, Output: out}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Outcome{Status: ResultKilled, Duration: elapsed, Output: out}
		}
		return Outcome{
			Status:   ResultError,
			Duration: elapsed,
			Output:   out,
			Message:  fmt.Sprintf("launching test command: %v", err),
		}
	}
}

func tail(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[len(b)-limit:])
}

// ApplyMutant rewrites source so the mutant's fragment is replaced at its
// recorded position. Minor column drift between generation and execution
// is tolerated by searching for the nearest matching occurrence on the
// line within a small radius.
func ApplyMutant(source string, m Mutant) (string, error) {
	if m.Original == "" {
		return "", fmt.Errorf("mutant has no source fragment")
	}

	lines := strings.Split(source, "\n")
	if m.Line < 1 || m.Line > len(lines) {
		return "", fmt.Errorf("mutant line %d out of range (%d lines)", m.Line, len(lines))
	}

	line := lines[m.Line-1]
	idx := locateFragment(line, m.Original, m.Column)
	if idx < 0 {
		return "", fmt.Errorf("fragment %q not found near line %d column %d", m.Original, m.Line, m.Column)
	}

	lines[m.Line-1] = line[:idx] + m.Mutated + line[idx+len(m.Original):]
	return strings.Join(lines, "\n"), nil
}

// locateFragment finds where on line the fragment sits. The recorded
// column wins when it matches exactly; otherwise the nearest boundary-
// respecting occurrence within fragmentSearchRadius is taken.
func locateFragment(line, fragment string, col int) int {
	if col >= 0 && col+len(fragment) <= len(line) &&
		line[col:col+len(fragment)] == fragment && fragmentBoundaryOK(line, fragment, col) {
		return col
	}

	best := -1
	for from := 0; from <= len(line)-len(fragment); {
		rel := strings.Index(line[from:], fragment)
		if rel < 0 {
			break
		}
		pos := from + rel
		from = pos + 1

		if !fragmentBoundaryOK(line, fragment, pos) {
			continue
		}
		d := pos - col
		if d < 0 {
			d = -d
		}
		if d > fragmentSearchRadius {
			continue
		}
		if best < 0 || d < absDiff(best, col) {
			best = pos
		}
	}
	return best
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// fragmentBoundaryOK rejects occurrences embedded in identifiers when
// the fragment itself starts or ends with a word byte, so replacing
// "true" never rewrites "construe".
func fragmentBoundaryOK(line, fragment string, pos int) bool {
	if isWordByte(fragment[0]) && pos > 0 && isWordByte(line[pos-1]) {
		return false
	}
	end := pos + len(fragment)
	if isWordByte(fragment[len(fragment)-1]) && end < len(line) && isWordByte(line[end]) {
		return false
	}
	return true
}
