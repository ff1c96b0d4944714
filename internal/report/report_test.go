package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mutesthq/mutest/internal/db"
	"github.com/mutesthq/mutest/internal/mutation"
)

func sampleReport() *Report {
	return &Report{
		Name:        "math helpers",
		Language:    "go",
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Summary: mutation.Summary{
			Total:    3,
			Killed:   2,
			Survived: 1,
			Score:    2.0 / 3.0,
			Scored:   true,
			Duration: 1500 * time.Millisecond,
		},
		Entries: []Entry{
			{
				MutationType:    mutation.KindArithmetic,
				OriginalCode:    "a + b",
				MutatedCode:     "a - b",
				Line:            3,
				Column:          9,
				TestResult:      mutation.ResultKilled,
				ExecutionTimeMs: 120,
			},
			{
				MutationType:    mutation.KindRelational,
				OriginalCode:    "a < b",
				MutatedCode:     "a > b",
				Line:            4,
				Column:          8,
				TestResult:      mutation.ResultSurvived,
				ExecutionTimeMs: 95,
			},
			{
				MutationType:    mutation.KindBoolean,
				OriginalCode:    "true",
				MutatedCode:     "false",
				Line:            7,
				Column:          12,
				TestResult:      mutation.ResultKilled,
				ExecutionTimeMs: 88,
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"csv", FormatCSV},
		{"html", FormatHTML},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"console", FormatConsole},
		{"text", FormatConsole},
		{" html ", FormatHTML},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseFormat_Unknown(t *testing.T) {
	_, err := ParseFormat("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
}

func TestRender_UnknownFormat(t *testing.T) {
	_, err := sampleReport().Render(Format("xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
}

func TestRenderJSON(t *testing.T) {
	out, err := sampleReport().Render(FormatJSON)
	require.NoError(t, err)

	var decoded struct {
		Name                 string  `json:"name"`
		Language             string  `json:"language"`
		TotalMutations       int     `json:"total_mutations"`
		KilledMutations      int     `json:"killed_mutations"`
		SurvivedMutations    int     `json:"survived_mutations"`
		MutationScore        float64 `json:"mutation_score"`
		ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
		Results              []struct {
			MutationType    string `json:"mutation_type"`
			OriginalCode    string `json:"original_code"`
			TestResult      string `json:"test_result"`
			ExecutionTimeMs int64  `json:"execution_time_ms"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))

	assert.Equal(t, "math helpers", decoded.Name)
	assert.Equal(t, "go", decoded.Language)
	assert.Equal(t, 3, decoded.TotalMutations)
	assert.Equal(t, 2, decoded.KilledMutations)
	assert.Equal(t, 1, decoded.SurvivedMutations)
	assert.InDelta(t, 66.67, decoded.MutationScore, 0.01)
	assert.InDelta(t, 1.5, decoded.ExecutionTimeSeconds, 0.001)

	require.Len(t, decoded.Results, 3)
	assert.Equal(t, "arithmetic", decoded.Results[0].MutationType)
	assert.Equal(t, "a + b", decoded.Results[0].OriginalCode)
	assert.Equal(t, "killed", decoded.Results[0].TestResult)
	assert.Equal(t, int64(120), decoded.Results[0].ExecutionTimeMs)
}

func TestRenderCSV(t *testing.T) {
	out, err := sampleReport().Render(FormatCSV)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "mutation_type,original_code,test_result,execution_time_ms,line,column", lines[0])
	assert.Equal(t, "arithmetic,a + b,killed,120,3,9", lines[1])
	assert.Equal(t, "relational,a < b,survived,95,4,8", lines[2])
}

func TestRenderCSV_EscapesCommas(t *testing.T) {
	r := sampleReport()
	r.Entries = r.Entries[:1]
	r.Entries[0].OriginalCode = "f(a, b)"

	out, err := r.Render(FormatCSV)
	require.NoError(t, err)
	assert.Contains(t, out, `f(a\, b)`)
}

func TestRenderHTML(t *testing.T) {
	out, err := sampleReport().Render(FormatHTML)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<h1>Mutation Testing Report</h1>")
	assert.Contains(t, out, `<tr class="killed">`)
	assert.Contains(t, out, `<tr class="survived">`)
	assert.Contains(t, out, "Total Mutations: 3")

	// 66.67% falls in the medium band.
	assert.Contains(t, out, `<span class="score-medium">66.67%</span>`)

	// html/template escapes the code fragments.
	assert.Contains(t, out, "a &lt; b")
	assert.NotContains(t, out, "<code>a < b</code>")
}

func TestScoreClass(t *testing.T) {
	assert.Equal(t, "score-high", scoreClass(92.5))
	assert.Equal(t, "score-high", scoreClass(80.0))
	assert.Equal(t, "score-medium", scoreClass(79.9))
	assert.Equal(t, "score-medium", scoreClass(60.0))
	assert.Equal(t, "score-low", scoreClass(59.9))
	assert.Equal(t, "score-low", scoreClass(0))
}

func TestRenderMarkdown(t *testing.T) {
	out, err := sampleReport().Render(FormatMarkdown)
	require.NoError(t, err)

	assert.Contains(t, out, "# Mutation Testing Report")
	assert.Contains(t, out, "## Summary")
	assert.Contains(t, out, "- **Total Mutations**: 3")
	assert.Contains(t, out, "- **Mutation Score**: 66.67%")
	assert.Contains(t, out, "## Mutation Results")
	assert.Contains(t, out, "| Mutation Type | Line | Column | Original Code | Result | Execution Time (ms) |")
	assert.Contains(t, out, "✅ Killed")
	assert.Contains(t, out, "❌ Survived")
	assert.Contains(t, out, "| arithmetic | 3 | 9 | `a + b` |")
}

func TestRenderMarkdown_EscapesTableCharacters(t *testing.T) {
	r := sampleReport()
	r.Entries = r.Entries[:1]
	r.Entries[0].OriginalCode = "a | `b`"

	out, err := r.Render(FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, out, "a \\| \\`b\\`")
}

func TestRenderConsole_WithSurvivors(t *testing.T) {
	out, err := sampleReport().Render(FormatConsole)
	require.NoError(t, err)

	assert.Contains(t, out, "=== MUTATION TESTING REPORT ===")
	assert.Contains(t, out, "Total Mutations: 3")
	assert.Contains(t, out, "Mutation Score: 66.67%")
	assert.Contains(t, out, "Survived Mutations (need better tests):")
	assert.Contains(t, out, "Line 4, Col 8: relational 'a < b'")
	assert.Contains(t, out, "Review survived mutations and add assertions or edge case tests.")
	assert.NotContains(t, out, "No survived mutations!")
	assert.Contains(t, out, "=== END OF REPORT ===")
}

func TestRenderConsole_NoSurvivors(t *testing.T) {
	r := sampleReport()
	r.Entries[1].TestResult = mutation.ResultKilled
	r.Summary.Killed = 3
	r.Summary.Survived = 0
	r.Summary.Score = 1.0

	out, err := r.Render(FormatConsole)
	require.NoError(t, err)
	assert.Contains(t, out, "No survived mutations! Great test coverage.")
	assert.NotContains(t, out, "Review survived mutations")
}

func TestFromJob(t *testing.T) {
	jobID := uuid.New()
	col := 4
	ms := int64(250)
	errMsg := "compile failed"

	job := &db.Job{ID: jobID, Name: "demo", Language: "python"}
	results := []db.Result{
		{
			ID:              uuid.New(),
			JobID:           jobID,
			MutationType:    mutation.KindNumeric,
			OriginalCode:    "42",
			MutatedCode:     "43",
			LineNumber:      10,
			ColumnNumber:    &col,
			TestResult:      mutation.ResultKilled,
			ExecutionTimeMs: &ms,
		},
		{
			ID:           uuid.New(),
			JobID:        jobID,
			MutationType: mutation.KindLogical,
			OriginalCode: "and",
			MutatedCode:  "or",
			LineNumber:   12,
			TestResult:   mutation.ResultError,
			ErrorMessage: &errMsg,
		},
	}
	summary := mutation.Summary{Total: 2, Killed: 1, Errors: 1, Score: 1.0, Scored: true}

	r := FromJob(job, results, summary)

	assert.Equal(t, "demo", r.Name)
	assert.Equal(t, "python", r.Language)
	assert.False(t, r.GeneratedAt.IsZero())
	require.Len(t, r.Entries, 2)

	assert.Equal(t, mutation.KindNumeric, r.Entries[0].MutationType)
	assert.Equal(t, 10, r.Entries[0].Line)
	assert.Equal(t, 4, r.Entries[0].Column)
	assert.Equal(t, int64(250), r.Entries[0].ExecutionTimeMs)

	// Nil optionals map to zero values.
	assert.Equal(t, 0, r.Entries[1].Column)
	assert.Equal(t, int64(0), r.Entries[1].ExecutionTimeMs)
	assert.Equal(t, "compile failed", r.Entries[1].ErrorMessage)
}

func TestFromRun(t *testing.T) {
	results := []mutation.CollectedResult{
		{
			Index:   0,
			Mutant:  mutation.Mutant{Kind: mutation.KindArithmetic, Original: "x * 2", Mutated: "x / 2", Line: 5, Column: 11},
			Outcome: mutation.Outcome{Status: mutation.ResultKilled, Duration: 300 * time.Millisecond},
		},
		{
			Index:   1,
			Mutant:  mutation.Mutant{Kind: mutation.KindConditionalBoundary, Original: "<=", Mutated: "<", Line: 8, Column: 6},
			Outcome: mutation.Outcome{Status: mutation.ResultSurvived, Duration: 210 * time.Millisecond},
		},
	}
	summary := mutation.Summary{Total: 2, Killed: 1, Survived: 1, Score: 0.5, Scored: true}

	r := FromRun("clamp.go", "go", results, summary)

	assert.Equal(t, "clamp.go", r.Name)
	require.Len(t, r.Entries, 2)
	assert.Equal(t, mutation.ResultKilled, r.Entries[0].TestResult)
	assert.Equal(t, int64(300), r.Entries[0].ExecutionTimeMs)
	assert.Equal(t, mutation.ResultSurvived, r.Entries[1].TestResult)
	assert.Equal(t, 8, r.Entries[1].Line)
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, sampleReport().Save(path, FormatMarkdown))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Mutation Testing Report")
}

func TestSave_UnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xml")
	err := sampleReport().Save(path, Format("xml"))
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestScore(t *testing.T) {
	r := &Report{Summary: mutation.Summary{Score: 0.845, Scored: true}}
	assert.InDelta(t, 84.5, r.Score(), 0.001)
}
