package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mutesthq/mutest/internal/mutation"
)

// Sentinel errors the API layer maps onto 404 and 409 responses.
var (
	ErrJobNotFound       = errors.New("mutation test not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store provides database operations
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store
func NewStore(db *DB) *Store {
	return &Store{pool: db.Pool()}
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Job is a persisted mutation test job.
type Job struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description *string            `json:"description,omitempty"`
	SourceCode  string             `json:"source_code"`
	Language    string             `json:"language"`
	Status      mutation.JobStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Result is the persisted outcome of a single mutant.
type Result struct {
	ID              uuid.UUID             `json:"id"`
	JobID           uuid.UUID             `json:"mutation_test_id"`
	MutationType    mutation.Kind         `json:"mutation_type"`
	OriginalCode    string                `json:"original_code"`
	MutatedCode     string                `json:"mutated_code"`
	LineNumber      int                   `json:"line_number"`
	ColumnNumber    *int                  `json:"column_number,omitempty"`
	TestResult      mutation.ResultStatus `json:"test_result"`
	ExecutionTimeMs *int64                `json:"execution_time_ms,omitempty"`
	ErrorMessage    *string               `json:"error_message,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// CreateJobParams holds the caller-supplied fields of a new job.
type CreateJobParams struct {
	Name        string
	Description *string
	SourceCode  string
	Language    string
}

// ListJobsFilter narrows and pages ListJobs.
type ListJobsFilter struct {
	Status   *mutation.JobStatus
	Language *string
	Limit    int
	Offset   int
}

// CreateJob inserts a new job in the pending state.
func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (*Job, error) {
	job := &Job{
		ID:          uuid.New(),
		Name:        p.Name,
		Description: p.Description,
		SourceCode:  p.SourceCode,
		Language:    p.Language,
		Status:      mutation.JobPending,
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO mutation_tests (id, name, description, source_code, language, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`, job.ID, job.Name, job.Description, job.SourceCode, job.Language, job.Status).
		Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create mutation test: %w", err)
	}

	return job, nil
}

// GetJob fetches a job by ID, returning ErrJobNotFound if it does not exist.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job := &Job{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, source_code, language, status, created_at, updated_at, started_at, completed_at
		FROM mutation_tests
		WHERE id = $1
	`, id).Scan(&job.ID, &job.Name, &job.Description, &job.SourceCode, &job.Language,
		&job.Status, &job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt)

	if err == pgx.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mutation test: %w", err)
	}

	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status and language.
func (s *Store) ListJobs(ctx context.Context, f ListJobsFilter) ([]Job, error) {
	query := `
		SELECT id, name, description, source_code, language, status, created_at, updated_at, started_at, completed_at
		FROM mutation_tests
		WHERE 1=1`
	args := []any{}

	if f.Status != nil {
		args = append(args, *f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Language != nil {
		args = append(args, *f.Language)
		query += fmt.Sprintf(" AND language = $%d", len(args))
	}

	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutation tests: %w", err)
	}
	defer rows.Close()

	jobs := make([]Job, 0)
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.Name, &job.Description, &job.SourceCode, &job.Language,
			&job.Status, &job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mutation test: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// UpdateJobStatus moves a job to the given status, enforcing the state
// machine. started_at is stamped on the transition into running and
// completed_at on the transition into a terminal state. Returns
// ErrJobNotFound or ErrInvalidTransition as appropriate.
func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, status mutation.JobStatus) (*Job, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, string(status))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current mutation.JobStatus
	err = tx.QueryRow(ctx, `SELECT status FROM mutation_tests WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err == pgx.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock mutation test: %w", err)
	}

	if !current.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	stampStarted := status == mutation.JobRunning
	stampCompleted := status.Terminal()

	job := &Job{}
	err = tx.QueryRow(ctx, `
		UPDATE mutation_tests
		SET status = $2,
		    started_at = CASE WHEN $3 THEN COALESCE(started_at, NOW()) ELSE started_at END,
		    completed_at = CASE WHEN $4 THEN COALESCE(completed_at, NOW()) ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, source_code, language, status, created_at, updated_at, started_at, completed_at
	`, id, status, stampStarted, stampCompleted).
		Scan(&job.ID, &job.Name, &job.Description, &job.SourceCode, &job.Language,
			&job.Status, &job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update mutation test status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	return job, nil
}

// DeleteJob removes a job and, through the cascade, its results.
func (s *Store) DeleteJob(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM mutation_tests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mutation test: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}

	return nil
}

// NextPendingJob returns the oldest pending job, or nil when none is
// waiting. It takes no lock and moves no state; callers claim the job
// through UpdateJobStatus, which arbitrates between competing pollers.
func (s *Store) NextPendingJob(ctx context.Context) (*Job, error) {
	job := &Job{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, source_code, language, status, created_at, updated_at, started_at, completed_at
		FROM mutation_tests
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT 1
	`).Scan(&job.ID, &job.Name, &job.Description, &job.SourceCode, &job.Language,
		&job.Status, &job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending job: %w", err)
	}

	return job, nil
}

// CreateResults inserts one pending result row per mutant and returns the
// records in mutant order, so callers can match outcomes back by index.
func (s *Store) CreateResults(ctx context.Context, jobID uuid.UUID, mutants []mutation.Mutant) ([]Result, error) {
	if len(mutants) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, len(mutants))
	batch := &pgx.Batch{}
	for i, m := range mutants {
		col := m.Column
		results[i] = Result{
			ID:           uuid.New(),
			JobID:        jobID,
			MutationType: m.Kind,
			OriginalCode: m.Original,
			MutatedCode:  m.Mutated,
			LineNumber:   m.Line,
			ColumnNumber: &col,
			TestResult:   mutation.ResultPending,
		}
		batch.Queue(`
			INSERT INTO mutation_results (id, mutation_test_id, mutation_type, original_code, mutated_code, line_number, column_number, test_result, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
			RETURNING created_at, updated_at
		`, results[i].ID, jobID, m.Kind, m.Original, m.Mutated, m.Line, col, mutation.ResultPending)
	}

	// One transaction so a failed batch leaves no partial result set.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := range results {
		if err := br.QueryRow().Scan(&results[i].CreatedAt, &results[i].UpdatedAt); err != nil {
			br.Close()
			return nil, fmt.Errorf("failed to create mutation result: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("failed to create mutation results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return results, nil
}

// RecordOutcome finalizes a pending result with its classification. A result
// that already reached a terminal state is left untouched, so redelivered
// work records at most once. execution_time_ms stays NULL for skipped
// mutants, which never ran.
func (s *Store) RecordOutcome(ctx context.Context, id uuid.UUID, out mutation.Outcome) error {
	var execMs *int64
	if out.Status != mutation.ResultSkipped {
		ms := out.Duration.Milliseconds()
		execMs = &ms
	}

	var errMsg *string
	if out.Message != "" {
		errMsg = &out.Message
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE mutation_results
		SET test_result = $2, execution_time_ms = $3, error_message = $4, updated_at = NOW()
		WHERE id = $1 AND test_result = 'pending'
	`, id, out.Status, execMs, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record mutation result: %w", err)
	}

	return nil
}

// ListResultsForJob returns a job's results ordered by source position.
func (s *Store) ListResultsForJob(ctx context.Context, jobID uuid.UUID) ([]Result, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mutation_test_id, mutation_type, original_code, mutated_code, line_number, column_number, test_result, execution_time_ms, error_message, created_at, updated_at
		FROM mutation_results
		WHERE mutation_test_id = $1
		ORDER BY line_number, column_number
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutation results: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.JobID, &r.MutationType, &r.OriginalCode, &r.MutatedCode,
			&r.LineNumber, &r.ColumnNumber, &r.TestResult, &r.ExecutionTimeMs, &r.ErrorMessage,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mutation result: %w", err)
		}
		results = append(results, r)
	}

	return results, nil
}

// SummarizeResults aggregates a job's result counts and execution time in
// the database, without loading the rows.
func (s *Store) SummarizeResults(ctx context.Context, jobID uuid.UUID, countTimeoutsAsKilled bool) (mutation.Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT test_result, COUNT(*), COALESCE(SUM(execution_time_ms), 0)
		FROM mutation_results
		WHERE mutation_test_id = $1
		GROUP BY test_result
	`, jobID)
	if err != nil {
		return mutation.Summary{}, fmt.Errorf("failed to summarize mutation results: %w", err)
	}
	defer rows.Close()

	var summary mutation.Summary
	for rows.Next() {
		var status mutation.ResultStatus
		var count int
		var totalMs int64
		if err := rows.Scan(&status, &count, &totalMs); err != nil {
			return mutation.Summary{}, fmt.Errorf("failed to scan result summary: %w", err)
		}
		summary.Total += count
		switch status {
		case mutation.ResultKilled:
			summary.Killed += count
		case mutation.ResultSurvived:
			summary.Survived += count
		case mutation.ResultTimeout:
			summary.Timeout += count
		case mutation.ResultError:
			summary.Errors += count
		case mutation.ResultSkipped:
			summary.Skipped += count
		case mutation.ResultPending:
			summary.Pending += count
		}
		summary.Duration += time.Duration(totalMs) * time.Millisecond
	}
	summary.Recount(countTimeoutsAsKilled)

	return summary, nil
}

// BuildSummary folds loaded results into the score summary served by the
// API and reports.
func BuildSummary(results []Result, countTimeoutsAsKilled bool) mutation.Summary {
	var summary mutation.Summary
	for _, r := range results {
		summary.Add(r.TestResult)
		if r.ExecutionTimeMs != nil {
			summary.Duration += time.Duration(*r.ExecutionTimeMs) * time.Millisecond
		}
	}
	summary.Recount(countTimeoutsAsKilled)
	return summary
}
