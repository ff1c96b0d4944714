package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mutesthq/mutest/internal/db"
	"github.com/mutesthq/mutest/internal/engine"
	"github.com/mutesthq/mutest/internal/mutation"
)

// CreateMutationRequest is the request body for submitting a mutation test
type CreateMutationRequest struct {
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	SourceCode  string           `json:"source_code"`
	Language    string           `json:"language,omitempty"`
	Config      *mutation.Config `json:"config,omitempty"`
}

// DryRunRequest is the request body for generating mutants without persisting
type DryRunRequest struct {
	SourceCode string           `json:"source_code"`
	Language   string           `json:"language,omitempty"`
	Config     *mutation.Config `json:"config,omitempty"`
}

// StartMutationRequest is the optional request body for starting a run.
// Config is not persisted with the job, so the run configuration travels
// with whatever triggers execution; an empty body runs with defaults.
type StartMutationRequest struct {
	Config *mutation.Config `json:"config,omitempty"`
}

// SummaryResponse aggregates per-mutant classifications for a job
type SummaryResponse struct {
	TotalMutations    int     `json:"total_mutations"`
	KilledMutations   int     `json:"killed_mutations"`
	SurvivedMutations int     `json:"survived_mutations"`
	ErrorMutations    int     `json:"error_mutations"`
	TimeoutMutations  int     `json:"timeout_mutations"`
	SkippedMutations  int     `json:"skipped_mutations"`
	PendingMutations  int     `json:"pending_mutations"`
	MutationScore     float64 `json:"mutation_score"`
}

// StatusResponse is a job with its aggregate summary
type StatusResponse struct {
	*db.Job
	Summary SummaryResponse `json:"summary"`
}

// ResultsResponse is a job with its full result list and summary
type ResultsResponse struct {
	*db.Job
	Results []db.Result     `json:"results"`
	Summary SummaryResponse `json:"summary"`
}

func summaryToResponse(s mutation.Summary) SummaryResponse {
	return SummaryResponse{
		TotalMutations:    s.Total,
		KilledMutations:   s.Killed,
		SurvivedMutations: s.Survived,
		ErrorMutations:    s.Errors,
		TimeoutMutations:  s.Timeout,
		SkippedMutations:  s.Skipped,
		PendingMutations:  s.Pending,
		MutationScore:     s.Score * 100,
	}
}

// handleError maps domain errors onto HTTP statuses. Anything unrecognized
// is logged and reported as a 500 with the given message.
func handleError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, db.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "mutation test not found")
	case errors.Is(err, db.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrInvalidJob):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Error().Err(err).Msg(msg)
		respondError(w, http.StatusInternalServerError, msg)
	}
}

// createMutation submits a new mutation test job
func (s *Server) createMutation(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}

	var req CreateMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := engine.SubmitParams{
		Name:        req.Name,
		Description: req.Description,
		SourceCode:  req.SourceCode,
		Language:    req.Language,
	}
	if req.Config != nil {
		params.Config = *req.Config
	}

	job, err := s.engine.Submit(r.Context(), params)
	if err != nil {
		handleError(w, err, "failed to create mutation test")
		return
	}

	respondJSON(w, http.StatusCreated, job)
}

// listMutations lists mutation tests with optional filters
func (s *Server) listMutations(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 {
			respondError(w, http.StatusUnprocessableEntity, "page must be a positive integer")
			return
		}
		page = p
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			respondError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		if l > 100 {
			respondError(w, http.StatusUnprocessableEntity, "limit cannot exceed 100")
			return
		}
		limit = l
	}

	filter := db.ListJobsFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if v := r.URL.Query().Get("status"); v != "" {
		status := mutation.JobStatus(v)
		if !status.Valid() {
			respondError(w, http.StatusUnprocessableEntity, "invalid status filter")
			return
		}
		filter.Status = &status
	}
	if v := r.URL.Query().Get("language"); v != "" {
		filter.Language = &v
	}

	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		handleError(w, err, "failed to list mutation tests")
		return
	}

	respondJSON(w, http.StatusOK, jobs)
}

// getMutation returns a mutation test with its aggregate summary
func (s *Server) getMutation(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "mutationID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mutation test ID")
		return
	}

	job, summary, err := s.engine.Status(r.Context(), id)
	if err != nil {
		handleError(w, err, "failed to get mutation test")
		return
	}

	respondJSON(w, http.StatusOK, StatusResponse{Job: job, Summary: summaryToResponse(summary)})
}

// deleteMutation removes a mutation test and its results
func (s *Server) deleteMutation(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "mutationID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mutation test ID")
		return
	}

	if err := s.store.DeleteJob(r.Context(), id); err != nil {
		handleError(w, err, "failed to delete mutation test")
		return
	}

	log.Info().Str("job_id", id.String()).Msg("mutation test deleted")
	respondJSON(w, http.StatusNoContent, nil)
}

// getMutationResults returns a mutation test with its full result list
func (s *Server) getMutationResults(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "mutationID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mutation test ID")
		return
	}

	job, results, summary, err := s.engine.Results(r.Context(), id)
	if err != nil {
		handleError(w, err, "failed to get mutation test results")
		return
	}

	respondJSON(w, http.StatusOK, ResultsResponse{
		Job:     job,
		Results: results,
		Summary: summaryToResponse(summary),
	})
}

// startMutation kicks off execution of a pending mutation test. The run
// happens in the background; the response carries the job as it was when
// the run was accepted.
func (s *Server) startMutation(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil || s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "mutationID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mutation test ID")
		return
	}

	var req StartMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var cfg mutation.Config
	if req.Config != nil {
		cfg = *req.Config
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		handleError(w, err, "failed to get mutation test")
		return
	}
	if job.Status != mutation.JobPending {
		respondError(w, http.StatusConflict, "mutation test is "+string(job.Status))
		return
	}

	// The request context dies with this response; the run gets its own.
	go func() {
		if err := s.engine.Start(context.Background(), id, cfg); err != nil {
			log.Error().Err(err).Str("job_id", id.String()).Msg("mutation run failed to start")
		}
	}()

	log.Info().Str("job_id", id.String()).Msg("mutation run accepted")
	respondJSON(w, http.StatusAccepted, job)
}

// cancelMutation cancels a pending or running mutation test
func (s *Server) cancelMutation(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "mutationID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mutation test ID")
		return
	}

	job, err := s.engine.Cancel(r.Context(), id)
	if err != nil {
		handleError(w, err, "failed to cancel mutation test")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// dryRun generates mutants for a source snippet without persisting anything
func (s *Server) dryRun(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}

	var req DryRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceCode == "" {
		respondError(w, http.StatusUnprocessableEntity, "source_code is required")
		return
	}

	cfg := mutation.Config{}
	if req.Config != nil {
		cfg = *req.Config
	}

	mutants, err := s.engine.DryRun(r.Context(), req.SourceCode, req.Language, cfg)
	if err != nil {
		// Dry runs touch no storage, so failures are input problems.
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, mutants)
}

// dryRunMutation generates mutants for a stored job's source without
// executing or persisting them
func (s *Server) dryRunMutation(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil || s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "mutationID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mutation test ID")
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		handleError(w, err, "failed to get mutation test")
		return
	}

	mutants, err := s.engine.DryRun(r.Context(), job.SourceCode, job.Language, mutation.Config{})
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, mutants)
}
