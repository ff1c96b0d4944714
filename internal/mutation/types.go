// Package mutation implements the mutant generation, execution, and
// classification engine: operators produce syntactic variants, the
// generator walks parsed source to build a deterministic mutant list,
// the executor runs each mutant against the test command in an isolated
// working copy, and the orchestrator fans execution out over a bounded
// worker pool.
package mutation

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind is the closed set of mutation operator categories. It is the
// internal representation; the open string form exists only at the
// persistence and configuration boundaries.
type Kind int

const (
	KindArithmetic Kind = iota
	KindRelational
	KindLogical
	KindBoolean
	KindNumeric
	KindConditionalBoundary
	KindStatementRemoval
)

// kindNames is the canonical serialized form, aligned with the
// mutation_type column vocabulary.
var kindNames = map[Kind]string{
	KindArithmetic:          "arithmetic",
	KindRelational:          "relational",
	KindLogical:             "logical",
	KindBoolean:             "boolean",
	KindNumeric:             "numeric",
	KindConditionalBoundary: "conditional_boundary",
	KindStatementRemoval:    "statement_removal",
}

// kindAliases accepts the looser vocabulary used by config files and
// older clients.
var kindAliases = map[string]Kind{
	"arithmetic":           KindArithmetic,
	"math":                 KindArithmetic,
	"relational":           KindRelational,
	"comparison":           KindRelational,
	"logical":              KindLogical,
	"logic":                KindLogical,
	"boolean":              KindBoolean,
	"bool":                 KindBoolean,
	"numeric":              KindNumeric,
	"number":               KindNumeric,
	"constant":             KindNumeric,
	"conditional_boundary": KindConditionalBoundary,
	"conditional":          KindConditionalBoundary,
	"boundary":             KindConditionalBoundary,
	"statement_removal":    KindStatementRemoval,
	"statement_deletion":   KindStatementRemoval,
	"statement":            KindStatementRemoval,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is a member of the closed set.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind converts the string form back to a Kind. Unknown strings
// are an error; lenient callers (config loaders) should use ParseKinds.
func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown mutation type %q", s)
	}
	return k, nil
}

// ParseKinds converts a list of strings to Kinds, collecting rather
// than failing on unknown entries so callers can warn and continue.
func ParseKinds(names []string) (kinds []Kind, unknown []string) {
	seen := make(map[Kind]bool)
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, unknown
}

// MarshalJSON serializes the Kind as its canonical string.
func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid mutation kind %d", int(k))
	}
	return json.Marshal(k.String())
}

// UnmarshalJSON parses the string form strictly.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value implements driver.Valuer, storing the canonical string.
func (k Kind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid mutation kind %d", int(k))
	}
	return k.String(), nil
}

// Scan implements sql.Scanner for reading the column form back.
func (k *Kind) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into mutation kind", src)
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// JobStatus is the lifecycle state of a mutation job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// jobTransitions enumerates the legal edges of the job state machine.
// Terminal states have no outgoing edges.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending: {JobRunning, JobFailed, JobCancelled},
	JobRunning: {JobCompleted, JobFailed, JobCancelled},
}

// Terminal reports whether the status has no outgoing transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the edge s -> to is legal.
func (s JobStatus) CanTransition(to JobStatus) bool {
	for _, next := range jobTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ResultStatus is the classification of a single mutant.
type ResultStatus string

const (
	ResultPending  ResultStatus = "pending"
	ResultKilled   ResultStatus = "killed"
	ResultSurvived ResultStatus = "survived"
	ResultTimeout  ResultStatus = "timeout"
	ResultError    ResultStatus = "error"
	ResultSkipped  ResultStatus = "skipped"
)

// Terminal reports whether the status is a final classification. A
// result transitions from pending to a terminal status exactly once.
func (s ResultStatus) Terminal() bool {
	switch s {
	case ResultKilled, ResultSurvived, ResultTimeout, ResultError, ResultSkipped:
		return true
	}
	return false
}

// Valid reports whether s is a known result status.
func (s ResultStatus) Valid() bool {
	return s == ResultPending || s.Terminal()
}

// Mutant describes one generated mutation: where it applies, what it
// replaces, and what it replaces it with. Fragments are stored instead
// of full-file rewrites; the executor reconstructs the mutated source
// by substitution at the recorded location. Descriptors deliberately
// carry no identity so that generation stays deterministic; the
// persistence layer assigns record ids.
type Mutant struct {
	Kind     Kind   `json:"kind"`
	Original string `json:"original"`
	Mutated  string `json:"mutated"`

	// Line is 1-based. Column is the byte offset of the original
	// fragment within the line, 0-based.
	Line   int `json:"line"`
	Column int `json:"column"`

	Description string `json:"description"`
}

// Outcome is the result of executing one mutant.
type Outcome struct {
	Status   ResultStatus  `json:"status"`
	Duration time.Duration `json:"duration"`

	// Output holds the tail of the test command's combined output.
	Output string `json:"output,omitempty"`

	// Message carries the failure detail for error outcomes.
	Message string `json:"message,omitempty"`
}

// Config controls generation and execution for one job.
type Config struct {
	// TimeoutSeconds bounds each mutant's test-command run.
	TimeoutSeconds int `json:"timeout_seconds"`

	// MaxMutationsPerLine caps mutants kept per source line. The first
	// N in traversal order survive; the rest are dropped.
	MaxMutationsPerLine int `json:"max_mutations_per_line"`

	// TestCommand is the shell command run against each mutated copy.
	TestCommand string `json:"test_command"`

	// MutationTypes is the operator allow-list.
	MutationTypes []Kind `json:"mutation_types"`

	// ExcludedMutations is the operator deny-list; it wins over the
	// allow-list.
	ExcludedMutations []Kind `json:"excluded_mutations,omitempty"`

	// ASTMutationsEnabled gates structural operators (statement
	// removal) that need a parsed tree rather than token scanning.
	ASTMutationsEnabled bool `json:"ast_mutations_enabled"`

	// ParallelJobs is the executor worker-pool size.
	ParallelJobs int `json:"parallel_jobs"`

	// CountTimeoutsAsKilled moves timeout outcomes into the mutation
	// score. Off by default; the choice changes the score materially,
	// so it is never implied.
	CountTimeoutsAsKilled bool `json:"count_timeouts_as_killed"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		TimeoutSeconds:      30,
		MaxMutationsPerLine: 5,
		TestCommand:         "go test ./...",
		MutationTypes: []Kind{
			KindArithmetic,
			KindRelational,
			KindLogical,
			KindBoolean,
			KindNumeric,
			KindConditionalBoundary,
		},
		ASTMutationsEnabled: false,
		ParallelJobs:        4,
	}
}

// Normalize fills zero values with defaults so a partially specified
// config behaves predictably.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = def.TimeoutSeconds
	}
	if c.MaxMutationsPerLine <= 0 {
		c.MaxMutationsPerLine = def.MaxMutationsPerLine
	}
	if c.TestCommand == "" {
		c.TestCommand = def.TestCommand
	}
	if len(c.MutationTypes) == 0 {
		c.MutationTypes = def.MutationTypes
	}
	if c.ParallelJobs <= 0 {
		c.ParallelJobs = def.ParallelJobs
	}
	return c
}

// Timeout returns the per-mutant deadline.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EnabledKinds resolves the allow-list minus the deny-list, preserving
// allow-list order.
func (c Config) EnabledKinds() []Kind {
	excluded := make(map[Kind]bool, len(c.ExcludedMutations))
	for _, k := range c.ExcludedMutations {
		excluded[k] = true
	}
	var kinds []Kind
	for _, k := range c.MutationTypes {
		if !excluded[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Excluded reports whether a kind is disabled by configuration.
func (c Config) Excluded(k Kind) bool {
	for _, ex := range c.ExcludedMutations {
		if ex == k {
			return true
		}
	}
	for _, allowed := range c.MutationTypes {
		if allowed == k {
			return false
		}
	}
	return true
}

// Summary aggregates per-mutant classifications for one job.
type Summary struct {
	Total    int `json:"total"`
	Killed   int `json:"killed"`
	Survived int `json:"survived"`
	Timeout  int `json:"timeout"`
	Errors   int `json:"errors"`
	Skipped  int `json:"skipped"`
	Pending  int `json:"pending"`

	// Score is killed / (killed + survived). Scored is false when the
	// denominator is zero, in which case Score is 0 rather than NaN.
	Score  float64 `json:"score"`
	Scored bool    `json:"scored"`

	Duration time.Duration `json:"duration"`
}

// Quality thresholds for interpreting a mutation score.
const (
	ThresholdGood       = 0.70
	ThresholdAcceptable = 0.50
)

// Quality buckets the score into good, acceptable, or poor.
func (s Summary) Quality() string {
	if !s.Scored {
		return "unknown"
	}
	if s.Score >= ThresholdGood {
		return "good"
	}
	if s.Score >= ThresholdAcceptable {
		return "acceptable"
	}
	return "poor"
}

// ComputeScore derives the mutation score from classification counts.
// Timeouts enter both numerator and denominator only when
// countTimeouts is set. Errors and skips never enter the denominator.
func ComputeScore(killed, survived, timeout int, countTimeouts bool) (float64, bool) {
	num := killed
	den := killed + survived
	if countTimeouts {
		num += timeout
		den += timeout
	}
	if den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

// Recount recomputes the score fields from the counts already in s.
func (s *Summary) Recount(countTimeouts bool) {
	s.Score, s.Scored = ComputeScore(s.Killed, s.Survived, s.Timeout, countTimeouts)
}

// Add folds one classification into the summary.
func (s *Summary) Add(status ResultStatus) {
	s.Total++
	switch status {
	case ResultKilled:
		s.Killed++
	case ResultSurvived:
		s.Survived++
	case ResultTimeout:
		s.Timeout++
	case ResultError:
		s.Errors++
	case ResultSkipped:
		s.Skipped++
	case ResultPending:
		s.Pending++
	}
}
