package mutation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mutesthq/mutest/internal/parser"
)

// ErrUnparsableSource marks source the grammar could not accept. It is
// a job-level fault: no mutants execute for such source.
var ErrUnparsableSource = errors.New("source contains syntax errors")

// Generator produces the ordered mutant list for one source file.
// Generation is deterministic: identical source and configuration
// always yield an identical, identically ordered list.
type Generator struct {
	parser *parser.Parser
}

// NewGenerator creates a generator backed by the given parser.
func NewGenerator(p *parser.Parser) *Generator {
	return &Generator{parser: p}
}

// Generate walks the source and applies every enabled operator at every
// eligible site. Traversal is line-ascending, then column-ascending,
// with a line's statement-removal candidates following its token
// candidates. The per-line cap keeps the first N candidates in that
// order and drops the rest. Zero mutants is a valid outcome, not an
// error.
func (g *Generator) Generate(ctx context.Context, source string, lang parser.Language, cfg Config) ([]Mutant, error) {
	cfg = cfg.Normalize()

	info, err := g.parser.ParseContent(ctx, "", source, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze source: %w", err)
	}
	if info.HasErrors {
		return nil, ErrUnparsableSource
	}

	enabled := make(map[Kind]bool)
	for _, k := range cfg.EnabledKinds() {
		enabled[k] = true
	}

	removals := make(map[int][]parser.Statement)
	if cfg.ASTMutationsEnabled && enabled[KindStatementRemoval] {
		for _, stmt := range info.Removable {
			removals[stmt.Line] = append(removals[stmt.Line], stmt)
		}
	}

	var mutants []Mutant
	seen := make(map[string]bool)

	appendCandidate := func(line, col int, c Candidate, kept *int) {
		key := fmt.Sprintf("%d:%d:%s", line, col, c.Mutated)
		if seen[key] {
			return
		}
		seen[key] = true
		if *kept >= cfg.MaxMutationsPerLine {
			return
		}
		*kept++
		mutants = append(mutants, Mutant{
			Kind:        c.Kind,
			Original:    c.Original,
			Mutated:     c.Mutated,
			Line:        line,
			Column:      col,
			Description: c.Description,
		})
	}

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		lineNo := i + 1
		kept := 0

		for pos := 0; pos < len(line); pos++ {
			if info.ProtectedAt(lineNo, pos) {
				continue
			}

			for _, rule := range matchRules(line, pos, enabled) {
				for _, c := range rule.candidates() {
					appendCandidate(lineNo, pos, c, &kept)
				}
			}

			if enabled[KindNumeric] {
				if lit := numericLiteralAt(line, pos); lit != "" {
					for _, c := range numericCandidates(lit) {
						appendCandidate(lineNo, pos, c, &kept)
					}
				}
			}
		}

		for _, stmt := range removals[lineNo] {
			appendCandidate(lineNo, stmt.Column, removalFor(stmt, lang), &kept)
		}
	}

	return mutants, nil
}

// removalFor adapts statement removal to the language: Python blocks
// must stay non-empty, so the statement becomes "pass" there.
func removalFor(stmt parser.Statement, lang parser.Language) Candidate {
	c := removalCandidate(stmt.Text)
	if lang == parser.LanguagePython {
		c.Mutated = "pass"
		c.Description = "Replaced statement with pass"
	}
	return c
}
