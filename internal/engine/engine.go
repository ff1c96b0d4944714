// Package engine ties the mutation core to persistence: it owns the job
// lifecycle from submission through generation, execution, and the final
// status transition, and tracks live runs so cancellation can reach them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mutesthq/mutest/internal/db"
	"github.com/mutesthq/mutest/internal/mutation"
	"github.com/mutesthq/mutest/internal/parser"
	"github.com/mutesthq/mutest/internal/sandbox"
)

// DefaultLanguage is assumed when a submission names none.
const DefaultLanguage = "go"

var (
	// ErrInvalidJob marks submissions rejected before persistence.
	ErrInvalidJob = errors.New("invalid mutation job")

	// ErrJobActive means this process is already executing the job.
	ErrJobActive = errors.New("job already running in this process")
)

// JobPublisher hands accepted jobs to the queue. Implementations must be
// safe for concurrent use.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID uuid.UUID, cfg mutation.Config) error
}

// Engine coordinates stores, generation, and execution for mutation jobs.
type Engine struct {
	store     *db.Store
	gen       *mutation.Generator
	runner    *mutation.Runner
	publisher JobPublisher

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc
}

// New builds an engine on the given store and sandbox manager. publisher
// may be nil, in which case submitted jobs wait for a polling worker.
func New(store *db.Store, sandboxes *sandbox.Manager, publisher JobPublisher) *Engine {
	p := parser.NewParser()
	return &Engine{
		store:     store,
		gen:       mutation.NewGenerator(p),
		runner:    mutation.NewRunner(mutation.NewExecutor(sandboxes)),
		publisher: publisher,
		active:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// SubmitParams describes a new job.
type SubmitParams struct {
	Name        string
	Description *string
	SourceCode  string
	Language    string
	Config      mutation.Config
}

// Submit validates and persists a pending job, then hands it to the queue
// when one is configured. An unsupported language is not rejected here; it
// surfaces as a failed job when execution begins.
func (e *Engine) Submit(ctx context.Context, p SubmitParams) (*db.Job, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidJob)
	}
	if strings.TrimSpace(p.SourceCode) == "" {
		return nil, fmt.Errorf("%w: source code cannot be empty", ErrInvalidJob)
	}
	if p.Language == "" {
		p.Language = DefaultLanguage
	}

	job, err := e.store.CreateJob(ctx, db.CreateJobParams{
		Name:        p.Name,
		Description: p.Description,
		SourceCode:  p.SourceCode,
		Language:    p.Language,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("job_id", job.ID.String()).
		Str("language", job.Language).
		Msg("mutation job submitted")

	if e.publisher != nil {
		if err := e.publisher.PublishJob(ctx, job.ID, p.Config); err != nil {
			// The job stays pending; a polling worker will claim it.
			log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failed to enqueue job")
		}
	}

	return job, nil
}

// Start executes one job end to end: generate mutants, claim the job by
// moving it to running, verify the baseline, persist pending results, run
// the mutants, and finalize the job status. The job must be pending. The
// running transition is the claim, so when two workers receive the same
// job the loser backs off before writing anything; it sees
// ErrInvalidTransition. Start returns an error only for infrastructure
// faults and lost claims; generation failures, baseline failures, and
// cancellations finalize the job and return nil.
func (e *Engine) Start(ctx context.Context, jobID uuid.UUID, cfg mutation.Config) error {
	runCtx, err := e.register(ctx, jobID)
	if err != nil {
		return err
	}
	defer e.unregister(jobID)

	job, err := e.store.GetJob(runCtx, jobID)
	if err != nil {
		return err
	}
	if job.Status != mutation.JobPending {
		return fmt.Errorf("%w: job is %s", db.ErrInvalidTransition, job.Status)
	}

	cfg = cfg.Normalize()

	lang, err := parser.ParseLanguage(job.Language)
	if err != nil {
		return e.failJob(runCtx, jobID, err)
	}

	mutants, err := e.gen.Generate(runCtx, job.SourceCode, lang, cfg)
	if err != nil {
		return e.failJob(runCtx, jobID, fmt.Errorf("generating mutants: %w", err))
	}

	if _, err := e.store.UpdateJobStatus(runCtx, jobID, mutation.JobRunning); err != nil {
		if errors.Is(err, db.ErrInvalidTransition) {
			log.Info().Str("job_id", jobID.String()).Msg("job claimed elsewhere")
		}
		return err
	}

	req := mutation.RunRequest{
		Source:   job.SourceCode,
		Filename: sourceFilename(lang),
		Mutants:  mutants,
		Config:   cfg,
	}

	var summary mutation.Summary
	runErr := e.runner.Baseline(runCtx, req)
	if runErr == nil {
		records, err := e.store.CreateResults(runCtx, jobID, mutants)
		if err != nil {
			// The claim went through but no result rows exist, so the job
			// can still be finalized coherently.
			return e.failJob(runCtx, jobID, fmt.Errorf("persisting result rows: %w", err))
		}

		ids := make([]uuid.UUID, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}

		summary, runErr = e.runner.Run(runCtx, req, &storeSink{store: e.store, ids: ids})
	} else if !errors.Is(runErr, context.Canceled) {
		log.Error().Err(runErr).Str("job_id", jobID.String()).Msg("baseline failed, mutants not executed")
	}

	final := mutation.JobCompleted
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			final = mutation.JobCancelled
		} else {
			final = mutation.JobFailed
		}
	}

	// Status still gets written when the run was cancelled.
	writeCtx := context.WithoutCancel(runCtx)
	if _, err := e.store.UpdateJobStatus(writeCtx, jobID, final); err != nil {
		if errors.Is(err, db.ErrInvalidTransition) {
			// Someone else finalized the row, typically a remote cancel.
			log.Warn().
				Str("job_id", jobID.String()).
				Str("status", string(final)).
				Msg("job already finalized")
		} else {
			return fmt.Errorf("finalizing job: %w", err)
		}
	}

	log.Info().
		Str("job_id", jobID.String()).
		Str("status", string(final)).
		Int("mutants", summary.Total).
		Float64("score", summary.Score).
		Msg("mutation job finished")

	return nil
}

// Cancel stops a job. Runs live in this process are cancelled cooperatively
// and finalize themselves once in-flight mutants drain; anything else is
// cancelled directly in the store.
func (e *Engine) Cancel(ctx context.Context, jobID uuid.UUID) (*db.Job, error) {
	e.mu.Lock()
	cancel, live := e.active[jobID]
	e.mu.Unlock()

	if live {
		cancel()
		log.Info().Str("job_id", jobID.String()).Msg("cancellation requested")
		return e.store.GetJob(ctx, jobID)
	}

	return e.store.UpdateJobStatus(ctx, jobID, mutation.JobCancelled)
}

// Status returns a job with its summary aggregated from persisted results.
func (e *Engine) Status(ctx context.Context, jobID uuid.UUID) (*db.Job, mutation.Summary, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, mutation.Summary{}, err
	}

	summary, err := e.store.SummarizeResults(ctx, jobID, mutation.DefaultConfig().CountTimeoutsAsKilled)
	if err != nil {
		return nil, mutation.Summary{}, err
	}

	return job, summary, nil
}

// Results returns a job with its full result list in source order.
func (e *Engine) Results(ctx context.Context, jobID uuid.UUID) (*db.Job, []db.Result, mutation.Summary, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, mutation.Summary{}, err
	}

	results, err := e.store.ListResultsForJob(ctx, jobID)
	if err != nil {
		return nil, nil, mutation.Summary{}, err
	}

	summary := db.BuildSummary(results, mutation.DefaultConfig().CountTimeoutsAsKilled)
	return job, results, summary, nil
}

// DryRun generates the mutant list for a source without touching the store.
func (e *Engine) DryRun(ctx context.Context, source, language string, cfg mutation.Config) ([]mutation.Mutant, error) {
	if language == "" {
		language = DefaultLanguage
	}
	lang, err := parser.ParseLanguage(language)
	if err != nil {
		return nil, err
	}

	return e.gen.Generate(ctx, source, lang, cfg.Normalize())
}

func (e *Engine) register(ctx context.Context, jobID uuid.UUID) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, live := e.active[jobID]; live {
		return nil, ErrJobActive
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.active[jobID] = cancel
	return runCtx, nil
}

func (e *Engine) unregister(jobID uuid.UUID) {
	e.mu.Lock()
	cancel := e.active[jobID]
	delete(e.active, jobID)
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (e *Engine) failJob(ctx context.Context, jobID uuid.UUID, cause error) error {
	log.Error().Err(cause).Str("job_id", jobID.String()).Msg("mutation job failed")

	if _, err := e.store.UpdateJobStatus(context.WithoutCancel(ctx), jobID, mutation.JobFailed); err != nil {
		return fmt.Errorf("marking job failed: %w", err)
	}
	return nil
}

// storeSink records orchestrator outcomes onto the pre-created result rows.
type storeSink struct {
	store *db.Store
	ids   []uuid.UUID
}

// Record writes one classification. The write context is detached from
// cancellation so drained skipped outcomes still land after a cancel.
func (s *storeSink) Record(ctx context.Context, index int, _ mutation.Mutant, out mutation.Outcome) error {
	if index < 0 || index >= len(s.ids) {
		return fmt.Errorf("result index %d out of range", index)
	}
	return s.store.RecordOutcome(context.WithoutCancel(ctx), s.ids[index], out)
}

func sourceFilename(lang parser.Language) string {
	switch lang {
	case parser.LanguageGo:
		return "source.go"
	case parser.LanguagePython:
		return "source.py"
	case parser.LanguageJavaScript:
		return "source.js"
	case parser.LanguageTypeScript:
		return "source.ts"
	default:
		return "source.txt"
	}
}
