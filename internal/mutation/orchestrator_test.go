package mutation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mutesthq/mutest/internal/sandbox"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(newTestExecutor(t))
}

func TestRunner_Run(t *testing.T) {
	r := newTestRunner(t)

	req := RunRequest{
		Source:   "a + b",
		Filename: "source.txt",
		Mutants: []Mutant{
			{Kind: KindArithmetic, Original: "+", Mutated: "-", Line: 1, Column: 2},
			{Kind: KindArithmetic, Original: "+", Mutated: "*", Line: 1, Column: 2},
		},
		Config: Config{
			// survives only when the mutated file contains a star
			TestCommand:    `grep -q '\*' source.txt`,
			TimeoutSeconds: 5,
			ParallelJobs:   2,
		},
	}

	var sink Collector
	summary, err := r.Run(context.Background(), req, &sink)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if summary.Total != 2 {
		t.Errorf("Total = %d, want 2", summary.Total)
	}
	if summary.Killed != 1 || summary.Survived != 1 {
		t.Errorf("killed/survived = %d/%d, want 1/1", summary.Killed, summary.Survived)
	}
	if !summary.Scored || summary.Score != 0.5 {
		t.Errorf("score = %f (scored=%v), want 0.5", summary.Score, summary.Scored)
	}
	if summary.Duration <= 0 {
		t.Error("expected a run duration")
	}

	results := sink.Results()
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Index != 0 || results[1].Index != 1 {
		t.Errorf("result indexes = %d, %d, want 0, 1", results[0].Index, results[1].Index)
	}
	if results[0].Outcome.Status != ResultKilled {
		t.Errorf("results[0] = %s, want killed", results[0].Outcome.Status)
	}
	if results[1].Outcome.Status != ResultSurvived {
		t.Errorf("results[1] = %s, want survived", results[1].Outcome.Status)
	}
}

func TestRunner_NoMutants(t *testing.T) {
	r := newTestRunner(t)

	summary, err := r.Run(context.Background(), RunRequest{
		Source:   "a + b",
		Filename: "source.txt",
		Config:   DefaultConfig(),
	}, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if summary.Total != 0 {
		t.Errorf("Total = %d, want 0", summary.Total)
	}
	if summary.Scored {
		t.Error("empty run should not produce a score")
	}
}

func TestRunner_Baseline(t *testing.T) {
	r := newTestRunner(t)

	req := RunRequest{
		Source:   "a + b",
		Filename: "source.txt",
		Config: Config{
			TestCommand:    "grep -q 'a + b' source.txt",
			TimeoutSeconds: 5,
		},
	}
	if err := r.Baseline(context.Background(), req); err != nil {
		t.Fatalf("Baseline() error: %v", err)
	}

	req.Config.TestCommand = "grep -q 'missing' source.txt"
	if err := r.Baseline(context.Background(), req); err == nil {
		t.Fatal("Baseline() should fail when the suite fails on unmutated source")
	}
}

func TestRunner_ExcludedKindSkipped(t *testing.T) {
	r := newTestRunner(t)

	// The logical mutant's kind is disabled at execution time, so it is
	// classified without ever running the test command.
	req := RunRequest{
		Source:   "a + b && c",
		Filename: "source.txt",
		Mutants: []Mutant{
			{Kind: KindArithmetic, Original: "+", Mutated: "-", Line: 1, Column: 2},
			{Kind: KindLogical, Original: "&&", Mutated: "||", Line: 1, Column: 6},
		},
		Config: Config{
			TestCommand:       "true",
			TimeoutSeconds:    5,
			ParallelJobs:      1,
			ExcludedMutations: []Kind{KindLogical},
		},
	}

	var sink Collector
	summary, err := r.Run(context.Background(), req, &sink)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if summary.Skipped != 1 || summary.Survived != 1 {
		t.Errorf("skipped/survived = %d/%d, want 1/1", summary.Skipped, summary.Survived)
	}

	results := sink.Results()
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[1].Outcome.Status != ResultSkipped {
		t.Errorf("excluded mutant = %s, want skipped", results[1].Outcome.Status)
	}
	if results[1].Outcome.Message != "mutation kind excluded" {
		t.Errorf("message = %q", results[1].Outcome.Message)
	}
}

func TestRunner_TimeoutsCountedWhenConfigured(t *testing.T) {
	r := newTestRunner(t)

	req := RunRequest{
		Source:   "a + b",
		Filename: "source.txt",
		Mutants: []Mutant{
			{Kind: KindArithmetic, Original: "+", Mutated: "-", Line: 1, Column: 2},
		},
		Config: Config{
			TestCommand:           "sleep 5",
			TimeoutSeconds:        1,
			ParallelJobs:          1,
			CountTimeoutsAsKilled: true,
		},
	}

	summary, err := r.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if summary.Timeout != 1 {
		t.Fatalf("Timeout = %d, want 1", summary.Timeout)
	}
	if !summary.Scored || summary.Score != 1.0 {
		t.Errorf("score = %f (scored=%v), want 1.0 with timeouts counted", summary.Score, summary.Scored)
	}

	// same outcome without the flag leaves nothing to score
	req.Config.CountTimeoutsAsKilled = false
	summary, err = r.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Scored {
		t.Errorf("score = %f, want unscored when timeouts are excluded", summary.Score)
	}
}

func TestRunner_CancellationDrains(t *testing.T) {
	r := newTestRunner(t)

	mutants := make([]Mutant, 4)
	for i := range mutants {
		mutants[i] = Mutant{Kind: KindArithmetic, Original: "+", Mutated: "-", Line: 1, Column: 2}
	}

	req := RunRequest{
		Source:   "a + b",
		Filename: "source.txt",
		Mutants:  mutants,
		Config: Config{
			TestCommand:    "sleep 5",
			TimeoutSeconds: 30,
			ParallelJobs:   1,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(150*time.Millisecond, cancel)
	defer timer.Stop()
	defer cancel()

	var sink Collector
	start := time.Now()
	summary, err := r.Run(ctx, req, &sink)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancelled run took %v, in-flight work did not drain", elapsed)
	}

	// every mutant still got a classification
	if summary.Total != 4 {
		t.Errorf("Total = %d, want 4", summary.Total)
	}
	if summary.Skipped != 4 {
		t.Errorf("Skipped = %d, want 4", summary.Skipped)
	}
	if len(sink.Results()) != 4 {
		t.Errorf("len(results) = %d, want 4", len(sink.Results()))
	}
	for _, res := range sink.Results() {
		if res.Outcome.Status != ResultSkipped {
			t.Errorf("result %d = %s, want skipped", res.Index, res.Outcome.Status)
		}
	}
}

type failingSink struct{}

func (failingSink) Record(context.Context, int, Mutant, Outcome) error {
	return errors.New("sink closed")
}

func TestRunner_SinkFailureAborts(t *testing.T) {
	r := newTestRunner(t)

	req := RunRequest{
		Source:   "a + b",
		Filename: "source.txt",
		Mutants: []Mutant{
			{Kind: KindArithmetic, Original: "+", Mutated: "-", Line: 1, Column: 2},
			{Kind: KindArithmetic, Original: "+", Mutated: "*", Line: 1, Column: 2},
		},
		Config: Config{TestCommand: "true", TimeoutSeconds: 5, ParallelJobs: 1},
	}

	_, err := r.Run(context.Background(), req, failingSink{})
	if err == nil {
		t.Fatal("Run() should surface sink failures")
	}
}

func TestCollector_OrdersByIndex(t *testing.T) {
	var c Collector
	ctx := context.Background()

	c.Record(ctx, 2, Mutant{}, Outcome{Status: ResultKilled})
	c.Record(ctx, 0, Mutant{}, Outcome{Status: ResultSurvived})
	c.Record(ctx, 1, Mutant{}, Outcome{Status: ResultTimeout})

	results := c.Results()
	if len(results) != 3 {
		t.Fatalf("len = %d, want 3", len(results))
	}
	for i, want := range []ResultStatus{ResultSurvived, ResultTimeout, ResultKilled} {
		if results[i].Index != i {
			t.Errorf("results[%d].Index = %d", i, results[i].Index)
		}
		if results[i].Outcome.Status != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].Outcome.Status, want)
		}
	}
}

func TestRunner_SandboxIsolation(t *testing.T) {
	// both mutants write the same filename; isolated sandboxes mean the
	// runs cannot observe each other even at full parallelism
	r := newTestRunner(t)

	req := RunRequest{
		Source:   "a + b",
		Filename: "source.txt",
		Mutants: []Mutant{
			{Kind: KindArithmetic, Original: "+", Mutated: "-", Line: 1, Column: 2},
			{Kind: KindArithmetic, Original: "+", Mutated: "*", Line: 1, Column: 2},
		},
		Config: Config{
			TestCommand:    `grep -q -- '-' source.txt`,
			TimeoutSeconds: 5,
			ParallelJobs:   2,
		},
	}

	var sink Collector
	if _, err := r.Run(context.Background(), req, &sink); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	results := sink.Results()
	if results[0].Outcome.Status != ResultSurvived {
		t.Errorf("minus mutant = %s, want survived", results[0].Outcome.Status)
	}
	if results[1].Outcome.Status != ResultKilled {
		t.Errorf("star mutant = %s, want killed", results[1].Outcome.Status)
	}
}
