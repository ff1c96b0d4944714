package db

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mutesthq/mutest/internal/mutation"
)

func msPtr(ms int64) *int64 {
	return &ms
}

func TestBuildSummary(t *testing.T) {
	jobID := uuid.New()
	results := []Result{
		{JobID: jobID, TestResult: mutation.ResultKilled, ExecutionTimeMs: msPtr(100)},
		{JobID: jobID, TestResult: mutation.ResultKilled, ExecutionTimeMs: msPtr(100)},
		{JobID: jobID, TestResult: mutation.ResultKilled, ExecutionTimeMs: msPtr(100)},
		{JobID: jobID, TestResult: mutation.ResultSurvived, ExecutionTimeMs: msPtr(50)},
		{JobID: jobID, TestResult: mutation.ResultTimeout, ExecutionTimeMs: msPtr(1000)},
		{JobID: jobID, TestResult: mutation.ResultError, ExecutionTimeMs: msPtr(20)},
		{JobID: jobID, TestResult: mutation.ResultSkipped},
		{JobID: jobID, TestResult: mutation.ResultSkipped},
	}

	summary := BuildSummary(results, false)

	if summary.Total != 8 {
		t.Errorf("Total = %d, want 8", summary.Total)
	}
	if summary.Killed != 3 || summary.Survived != 1 || summary.Timeout != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/1/1", summary.Killed, summary.Survived, summary.Timeout)
	}
	if summary.Errors != 1 || summary.Skipped != 2 {
		t.Errorf("errors/skipped = %d/%d, want 1/2", summary.Errors, summary.Skipped)
	}
	if !summary.Scored || summary.Score != 0.75 {
		t.Errorf("Score = %v (scored %v), want 0.75", summary.Score, summary.Scored)
	}
	if want := 1270 * time.Millisecond; summary.Duration != want {
		t.Errorf("Duration = %v, want %v", summary.Duration, want)
	}

	summary = BuildSummary(results, true)
	if summary.Score != 0.8 {
		t.Errorf("Score with timeouts counted = %v, want 0.8", summary.Score)
	}
}

func TestBuildSummary_NoExecutedResults(t *testing.T) {
	results := []Result{
		{TestResult: mutation.ResultSkipped},
		{TestResult: mutation.ResultPending},
	}

	summary := BuildSummary(results, false)

	if summary.Scored {
		t.Error("summary should be unscored with no killed or survived results")
	}
	if summary.Score != 0 {
		t.Errorf("Score = %v, want 0", summary.Score)
	}
	if summary.Duration != 0 {
		t.Errorf("Duration = %v, want 0", summary.Duration)
	}
}

func TestJob_JSON(t *testing.T) {
	desc := "checks the adder"
	started := time.Now()
	job := Job{
		ID:          uuid.New(),
		Name:        "adder",
		Description: &desc,
		SourceCode:  "func Add(a, b int) int { return a + b }",
		Language:    "go",
		Status:      mutation.JobRunning,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		StartedAt:   &started,
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	s := string(data)
	for _, key := range []string{`"id"`, `"name"`, `"source_code"`, `"language"`, `"started_at"`} {
		if !strings.Contains(s, key) {
			t.Errorf("JSON missing key %s", key)
		}
	}
	if !strings.Contains(s, `"status":"running"`) {
		t.Errorf("JSON status = %s, want running", s)
	}
	if strings.Contains(s, "completed_at") {
		t.Error("JSON should omit unset completed_at")
	}

	var decoded Job
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded.ID != job.ID {
		t.Errorf("ID = %s, want %s", decoded.ID, job.ID)
	}
	if decoded.Status != mutation.JobRunning {
		t.Errorf("Status = %s, want running", decoded.Status)
	}
}

func TestResult_JSON(t *testing.T) {
	col := 10
	r := Result{
		ID:              uuid.New(),
		JobID:           uuid.New(),
		MutationType:    mutation.KindConditionalBoundary,
		OriginalCode:    "<",
		MutatedCode:     "<=",
		LineNumber:      4,
		ColumnNumber:    &col,
		TestResult:      mutation.ResultKilled,
		ExecutionTimeMs: msPtr(120),
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	s := string(data)
	if !strings.Contains(s, `"mutation_type":"conditional_boundary"`) {
		t.Errorf("JSON mutation_type wrong: %s", s)
	}
	if !strings.Contains(s, `"test_result":"killed"`) {
		t.Errorf("JSON test_result wrong: %s", s)
	}
	if !strings.Contains(s, `"mutation_test_id"`) {
		t.Errorf("JSON missing mutation_test_id: %s", s)
	}
	if strings.Contains(s, "error_message") {
		t.Error("JSON should omit unset error_message")
	}
}
