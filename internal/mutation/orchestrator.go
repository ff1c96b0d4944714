package mutation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ResultSink receives classifications as mutants finish. Record is
// called from multiple workers concurrently; implementations must be
// safe for that. The index is the mutant's position in the generated
// list, so sinks can match outcomes to records created up front.
type ResultSink interface {
	Record(ctx context.Context, index int, m Mutant, out Outcome) error
}

// RunRequest bundles everything one mutation run needs.
type RunRequest struct {
	// Source is the unmutated file content.
	Source string

	// Filename is where the mutated source lands inside each sandbox,
	// relative to its root.
	Filename string

	// ProjectDir, when set, is copied into each sandbox so the test
	// command sees the surrounding project.
	ProjectDir string

	Mutants []Mutant
	Config  Config
}

// execOptions derives the executor options for this request.
func (req RunRequest) execOptions(cfg Config) ExecOptions {
	return ExecOptions{
		TestCommand: cfg.TestCommand,
		Timeout:     cfg.Timeout(),
		Filename:    req.Filename,
		ProjectDir:  req.ProjectDir,
	}
}

// Runner drives a set of mutants through the executor with bounded
// parallelism and aggregates their classifications.
type Runner struct {
	exec *Executor
}

// NewRunner returns a Runner executing through exec.
func NewRunner(exec *Executor) *Runner {
	return &Runner{exec: exec}
}

// Baseline runs the test command against the unmutated source. A suite
// that fails before anything is mutated cannot classify mutants, so
// callers treat a baseline failure as a run-level fault rather than an
// outcome.
func (r *Runner) Baseline(ctx context.Context, req RunRequest) error {
	return r.exec.Baseline(ctx, req.Source, req.execOptions(req.Config.Normalize()))
}

// Run executes every mutant in the request and returns the aggregate
// summary. Outcomes stream into sink in completion order. When the
// context is cancelled mid-run, in-flight mutants are torn down and
// every remaining mutant is recorded as skipped, so no mutant is left
// without a classification; Run then reports the context error.
func (r *Runner) Run(ctx context.Context, req RunRequest, sink ResultSink) (Summary, error) {
	cfg := req.Config.Normalize()
	opts := req.execOptions(cfg)

	log.Info().
		Int("mutants", len(req.Mutants)).
		Int("parallel", cfg.ParallelJobs).
		Str("test_command", cfg.TestCommand).
		Msg("starting mutation run")

	start := time.Now()

	var (
		mu      sync.Mutex
		summary Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.ParallelJobs)

	for i, m := range req.Mutants {
		g.Go(func() error {
			var out Outcome
			switch {
			case gctx.Err() != nil:
				out = Outcome{Status: ResultSkipped, Message: "run cancelled"}
			case cfg.Excluded(m.Kind):
				// The kind was disabled between generation and execution.
				out = Outcome{Status: ResultSkipped, Message: "mutation kind excluded"}
			default:
				out = r.exec.Execute(gctx, req.Source, m, opts)
			}

			mu.Lock()
			summary.Add(out.Status)
			mu.Unlock()

			log.Debug().
				Int("index", i).
				Str("kind", m.Kind.String()).
				Int("line", m.Line).
				Str("status", string(out.Status)).
				Dur("duration", out.Duration).
				Msg("mutant classified")

			if sink != nil {
				if err := sink.Record(gctx, i, m, out); err != nil {
					return fmt.Errorf("recording result %d: %w", i, err)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	summary.Duration = time.Since(start)
	summary.Recount(cfg.CountTimeoutsAsKilled)

	if err == nil {
		err = ctx.Err()
	}

	log.Info().
		Int("total", summary.Total).
		Int("killed", summary.Killed).
		Int("survived", summary.Survived).
		Int("timeouts", summary.Timeout).
		Float64("score", summary.Score).
		Dur("duration", summary.Duration).
		Msg("mutation run finished")

	return summary, err
}

// CollectedResult pairs a mutant with its outcome for in-process runs.
type CollectedResult struct {
	Index   int     `json:"index"`
	Mutant  Mutant  `json:"mutant"`
	Outcome Outcome `json:"outcome"`
}

// Collector is a ResultSink that keeps everything in memory. Results
// returns entries in mutant order regardless of completion order.
type Collector struct {
	mu      sync.Mutex
	results []CollectedResult
}

func (c *Collector) Record(_ context.Context, index int, m Mutant, out Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, CollectedResult{Index: index, Mutant: m, Outcome: out})
	return nil
}

// Results returns the collected outcomes sorted by mutant index.
func (c *Collector) Results() []CollectedResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CollectedResult, len(c.results))
	copy(out, c.results)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
