// Package report renders a finished mutation run into the supported
// output formats. A Report is a point-in-time snapshot; renderers never
// reach back into the engine or the store.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mutesthq/mutest/internal/db"
	"github.com/mutesthq/mutest/internal/mutation"
)

// Format represents the output format for mutation reports
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatConsole  Format = "console"
)

// ParseFormat resolves a format name, accepting the common md alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "html":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "console", "text":
		return FormatConsole, nil
	default:
		return "", fmt.Errorf("unsupported report format: %s", s)
	}
}

// Entry is one mutant's line in a report.
type Entry struct {
	MutationType    mutation.Kind         `json:"mutation_type"`
	OriginalCode    string                `json:"original_code"`
	MutatedCode     string                `json:"mutated_code"`
	Line            int                   `json:"line"`
	Column          int                   `json:"column"`
	TestResult      mutation.ResultStatus `json:"test_result"`
	ExecutionTimeMs int64                 `json:"execution_time_ms"`
	ErrorMessage    string                `json:"error_message,omitempty"`
}

// Report is a renderable snapshot of one mutation run.
type Report struct {
	Name        string
	Language    string
	GeneratedAt time.Time
	Summary     mutation.Summary
	Entries     []Entry
}

// FromJob builds a report from a persisted job and its result rows.
func FromJob(job *db.Job, results []db.Result, summary mutation.Summary) *Report {
	entries := make([]Entry, len(results))
	for i, r := range results {
		e := Entry{
			MutationType: r.MutationType,
			OriginalCode: r.OriginalCode,
			MutatedCode:  r.MutatedCode,
			Line:         r.LineNumber,
			TestResult:   r.TestResult,
		}
		if r.ColumnNumber != nil {
			e.Column = *r.ColumnNumber
		}
		if r.ExecutionTimeMs != nil {
			e.ExecutionTimeMs = *r.ExecutionTimeMs
		}
		if r.ErrorMessage != nil {
			e.ErrorMessage = *r.ErrorMessage
		}
		entries[i] = e
	}

	return &Report{
		Name:        job.Name,
		Language:    job.Language,
		GeneratedAt: time.Now().UTC(),
		Summary:     summary,
		Entries:     entries,
	}
}

// FromRun builds a report from an in-memory run. Used by the CLI,
// which executes without a database and collects outcomes as the run
// goes.
func FromRun(name, language string, results []mutation.CollectedResult, summary mutation.Summary) *Report {
	entries := make([]Entry, len(results))
	for i, res := range results {
		entries[i] = Entry{
			MutationType:    res.Mutant.Kind,
			OriginalCode:    res.Mutant.Original,
			MutatedCode:     res.Mutant.Mutated,
			Line:            res.Mutant.Line,
			Column:          res.Mutant.Column,
			TestResult:      res.Outcome.Status,
			ExecutionTimeMs: res.Outcome.Duration.Milliseconds(),
			ErrorMessage:    res.Outcome.Message,
		}
	}

	return &Report{
		Name:        name,
		Language:    language,
		GeneratedAt: time.Now().UTC(),
		Summary:     summary,
		Entries:     entries,
	}
}

// Score returns the mutation score as a percentage.
func (r *Report) Score() float64 {
	return r.Summary.Score * 100
}

// Render produces the report in the requested format.
func (r *Report) Render(format Format) (string, error) {
	switch format {
	case FormatJSON:
		return r.renderJSON()
	case FormatCSV:
		return r.renderCSV(), nil
	case FormatHTML:
		return r.renderHTML()
	case FormatMarkdown:
		return r.renderMarkdown(), nil
	case FormatConsole:
		return r.renderConsole(), nil
	default:
		return "", fmt.Errorf("unsupported report format: %s", format)
	}
}

// Save renders the report and writes it to path.
func (r *Report) Save(path string, format Format) error {
	content, err := r.Render(format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	log.Info().Str("path", path).Str("format", string(format)).Msg("report written")
	return nil
}

// jsonReport is the serialized form, keeping the wire field names the
// rest of the system uses for summaries.
type jsonReport struct {
	Name                 string    `json:"name,omitempty"`
	Language             string    `json:"language,omitempty"`
	GeneratedAt          time.Time `json:"generated_at"`
	TotalMutations       int       `json:"total_mutations"`
	KilledMutations      int       `json:"killed_mutations"`
	SurvivedMutations    int       `json:"survived_mutations"`
	ErrorMutations       int       `json:"error_mutations"`
	TimeoutMutations     int       `json:"timeout_mutations"`
	SkippedMutations     int       `json:"skipped_mutations"`
	MutationScore        float64   `json:"mutation_score"`
	ExecutionTimeSeconds float64   `json:"execution_time_seconds"`
	Results              []Entry   `json:"results"`
}

func (r *Report) renderJSON() (string, error) {
	out := jsonReport{
		Name:                 r.Name,
		Language:             r.Language,
		GeneratedAt:          r.GeneratedAt,
		TotalMutations:       r.Summary.Total,
		KilledMutations:      r.Summary.Killed,
		SurvivedMutations:    r.Summary.Survived,
		ErrorMutations:       r.Summary.Errors,
		TimeoutMutations:     r.Summary.Timeout,
		SkippedMutations:     r.Summary.Skipped,
		MutationScore:        r.Score(),
		ExecutionTimeSeconds: r.Summary.Duration.Seconds(),
		Results:              r.Entries,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

func (r *Report) renderCSV() string {
	var buf bytes.Buffer
	buf.WriteString("mutation_type,original_code,test_result,execution_time_ms,line,column\n")

	for _, e := range r.Entries {
		original := strings.ReplaceAll(e.OriginalCode, ",", "\\,")
		fmt.Fprintf(&buf, "%s,%s,%s,%d,%d,%d\n",
			e.MutationType, original, e.TestResult, e.ExecutionTimeMs, e.Line, e.Column)
	}

	return buf.String()
}

type htmlRow struct {
	StatusClass     string
	MutationType    string
	Line            int
	Column          int
	OriginalCode    string
	MutatedCode     string
	Result          string
	ExecutionTimeMs int64
}

type htmlReportData struct {
	Name          string
	Language      string
	GeneratedAt   string
	Total         int
	Killed        int
	Survived      int
	Errors        int
	Timeout       int
	Skipped       int
	Score         string
	ScoreClass    string
	ExecutionTime string
	Rows          []htmlRow
}

func (r *Report) renderHTML() (string, error) {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse report template: %w", err)
	}

	data := htmlReportData{
		Name:          r.Name,
		Language:      r.Language,
		GeneratedAt:   r.GeneratedAt.Format(time.RFC3339),
		Total:         r.Summary.Total,
		Killed:        r.Summary.Killed,
		Survived:      r.Summary.Survived,
		Errors:        r.Summary.Errors,
		Timeout:       r.Summary.Timeout,
		Skipped:       r.Summary.Skipped,
		Score:         fmt.Sprintf("%.2f", r.Score()),
		ScoreClass:    scoreClass(r.Score()),
		ExecutionTime: fmt.Sprintf("%.2f", r.Summary.Duration.Seconds()),
	}
	for _, e := range r.Entries {
		data.Rows = append(data.Rows, htmlRow{
			StatusClass:     string(e.TestResult),
			MutationType:    e.MutationType.String(),
			Line:            e.Line,
			Column:          e.Column,
			OriginalCode:    e.OriginalCode,
			MutatedCode:     e.MutatedCode,
			Result:          string(e.TestResult),
			ExecutionTimeMs: e.ExecutionTimeMs,
		})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render report template: %w", err)
	}
	return buf.String(), nil
}

// scoreClass maps a percentage score to its display class.
func scoreClass(score float64) string {
	switch {
	case score >= 80.0:
		return "score-high"
	case score >= 60.0:
		return "score-medium"
	default:
		return "score-low"
	}
}

func (r *Report) renderMarkdown() string {
	var buf bytes.Buffer

	buf.WriteString("# Mutation Testing Report\n\n")
	buf.WriteString("## Summary\n\n")
	fmt.Fprintf(&buf, "- **Total Mutations**: %d\n", r.Summary.Total)
	fmt.Fprintf(&buf, "- **Killed Mutations**: %d\n", r.Summary.Killed)
	fmt.Fprintf(&buf, "- **Survived Mutations**: %d\n", r.Summary.Survived)
	fmt.Fprintf(&buf, "- **Error Mutations**: %d\n", r.Summary.Errors)
	fmt.Fprintf(&buf, "- **Timeout Mutations**: %d\n", r.Summary.Timeout)
	fmt.Fprintf(&buf, "- **Skipped Mutations**: %d\n", r.Summary.Skipped)
	fmt.Fprintf(&buf, "- **Mutation Score**: %.2f%%\n", r.Score())
	fmt.Fprintf(&buf, "- **Execution Time**: %.2f seconds\n\n", r.Summary.Duration.Seconds())

	buf.WriteString("## Mutation Results\n\n")
	buf.WriteString("| Mutation Type | Line | Column | Original Code | Result | Execution Time (ms) |\n")
	buf.WriteString("|--------------|------|--------|--------------|--------|--------------------|\n")

	for _, e := range r.Entries {
		original := strings.NewReplacer("|", "\\|", "`", "\\`").Replace(e.OriginalCode)
		fmt.Fprintf(&buf, "| %s | %d | %d | `%s` | %s | %d |\n",
			e.MutationType, e.Line, e.Column, original, markdownStatus(e.TestResult), e.ExecutionTimeMs)
	}

	return buf.String()
}

func markdownStatus(s mutation.ResultStatus) string {
	switch s {
	case mutation.ResultKilled:
		return "✅ Killed"
	case mutation.ResultSurvived:
		return "❌ Survived"
	case mutation.ResultTimeout:
		return "⏱️ Timeout"
	case mutation.ResultError:
		return "⚠️ Error"
	case mutation.ResultSkipped:
		return "⏭️ Skipped"
	default:
		return string(s)
	}
}

func (r *Report) renderConsole() string {
	var buf bytes.Buffer

	buf.WriteString("\n=== MUTATION TESTING REPORT ===\n\n")
	fmt.Fprintf(&buf, "Total Mutations: %d\n", r.Summary.Total)
	fmt.Fprintf(&buf, "Killed Mutations: %d\n", r.Summary.Killed)
	fmt.Fprintf(&buf, "Survived Mutations: %d\n", r.Summary.Survived)
	fmt.Fprintf(&buf, "Error Mutations: %d\n", r.Summary.Errors)
	fmt.Fprintf(&buf, "Timeout Mutations: %d\n", r.Summary.Timeout)
	fmt.Fprintf(&buf, "Skipped Mutations: %d\n", r.Summary.Skipped)
	fmt.Fprintf(&buf, "Mutation Score: %.2f%%\n", r.Score())
	fmt.Fprintf(&buf, "Execution Time: %.2f seconds\n\n", r.Summary.Duration.Seconds())

	buf.WriteString("Survived Mutations (need better tests):\n")
	buf.WriteString("----------------------------------------\n")

	survived := false
	for _, e := range r.Entries {
		if e.TestResult != mutation.ResultSurvived {
			continue
		}
		survived = true
		fmt.Fprintf(&buf, "Line %d, Col %d: %s '%s'\n\n", e.Line, e.Column, e.MutationType, e.OriginalCode)
	}

	if survived {
		buf.WriteString("Review survived mutations and add assertions or edge case tests.\n")
	} else {
		buf.WriteString("No survived mutations! Great test coverage.\n")
	}

	buf.WriteString("\n=== END OF REPORT ===\n")

	return buf.String()
}

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
    <title>Mutation Testing Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        h1 { color: #333; }
        .meta { color: #666; margin-bottom: 20px; }
        table { border-collapse: collapse; width: 100%; margin-top: 10px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        .killed { background-color: #d4edda; }
        .survived { background-color: #f8d7da; }
        .timeout { background-color: #fff3cd; }
        .error { background-color: #f5c6cb; }
        .skipped { background-color: #e2e3e5; }
        .score-high { color: #28a745; font-weight: bold; }
        .score-medium { color: #ffc107; font-weight: bold; }
        .score-low { color: #dc3545; font-weight: bold; }
    </style>
</head>
<body>
    <h1>Mutation Testing Report</h1>
    <div class="meta">
        {{if .Name}}<p>Test: {{.Name}}</p>{{end}}
        {{if .Language}}<p>Language: {{.Language}}</p>{{end}}
        <p>Generated: {{.GeneratedAt}}</p>
    </div>

    <h2>Summary</h2>
    <p>Total Mutations: {{.Total}}</p>
    <p>Killed Mutations: {{.Killed}}</p>
    <p>Survived Mutations: {{.Survived}}</p>
    <p>Error Mutations: {{.Errors}}</p>
    <p>Timeout Mutations: {{.Timeout}}</p>
    <p>Skipped Mutations: {{.Skipped}}</p>
    <p>Mutation Score: <span class="{{.ScoreClass}}">{{.Score}}%</span></p>
    <p>Execution Time: {{.ExecutionTime}} seconds</p>

    <h2>Mutation Results</h2>
    <table>
        <tr>
            <th>Mutation Type</th>
            <th>Line</th>
            <th>Column</th>
            <th>Original Code</th>
            <th>Mutated Code</th>
            <th>Result</th>
            <th>Execution Time (ms)</th>
        </tr>
        {{range .Rows}}
        <tr class="{{.StatusClass}}">
            <td>{{.MutationType}}</td>
            <td>{{.Line}}</td>
            <td>{{.Column}}</td>
            <td><code>{{.OriginalCode}}</code></td>
            <td><code>{{.MutatedCode}}</code></td>
            <td>{{.Result}}</td>
            <td>{{.ExecutionTimeMs}}</td>
        </tr>
        {{end}}
    </table>
</body>
</html>
`
