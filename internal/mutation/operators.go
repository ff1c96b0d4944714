package mutation

import (
	"fmt"
	"strconv"
)

// Candidate is one operator application at one site: the fragment it
// replaces and the fragment it produces. Candidates are pure data;
// operators never touch the source itself.
type Candidate struct {
	Kind        Kind
	Original    string
	Mutated     string
	Description string
}

// tokenRule maps one source token to its ordered replacement list.
type tokenRule struct {
	token        string
	kind         Kind
	replacements []string
}

// Token rules are ordered twice over: longer tokens come before their
// prefixes so matching is unambiguous, and each replacement list fixes
// the order candidates are generated in.
var tokenRules = []tokenRule{
	{"==", KindRelational, []string{"!=", "<", ">"}},
	{"!=", KindRelational, []string{"=="}},
	{"<=", KindRelational, []string{"<", ">="}},
	{">=", KindRelational, []string{">", "<="}},
	{"&&", KindLogical, []string{"||"}},
	{"||", KindLogical, []string{"&&"}},
	{"<", KindRelational, []string{"<=", ">", "=="}},
	{">", KindRelational, []string{">=", "<", "=="}},
	{"+", KindArithmetic, []string{"-", "*"}},
	{"-", KindArithmetic, []string{"+", "*"}},
	{"*", KindArithmetic, []string{"/", "+"}},
	{"/", KindArithmetic, []string{"*", "%"}},
	{"%", KindArithmetic, []string{"/", "*"}},
	{"!", KindLogical, []string{""}},
}

// boundaryRules flip strict and inclusive comparisons. They overlap
// with the relational table on purpose; duplicate candidates collapse
// during generation, so enabling both kinds never doubles a mutant.
var boundaryRules = []tokenRule{
	{"<=", KindConditionalBoundary, []string{"<"}},
	{">=", KindConditionalBoundary, []string{">"}},
	{"<", KindConditionalBoundary, []string{"<="}},
	{">", KindConditionalBoundary, []string{">="}},
}

// wordRules cover keyword literals matched on word boundaries.
var wordRules = []tokenRule{
	{"true", KindBoolean, []string{"false"}},
	{"false", KindBoolean, []string{"true"}},
}

// maxTokenLen is the longest token any rule matches.
const maxTokenLen = 2

// operatorNeighbors are the bytes that make an operator occurrence
// part of a wider token (for example the "=" in "+=", or the second
// "&" in "&&"). A match with such a neighbor is not standalone.
const operatorNeighbors = "=!<>+-*/&|%"

func isOperatorNeighbor(b byte) bool {
	for i := 0; i < len(operatorNeighbors); i++ {
		if operatorNeighbors[i] == b {
			return true
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// operatorStandalone reports whether the token at line[start:start+n]
// is a complete operator rather than a slice of a wider one.
func operatorStandalone(line string, start, n int) bool {
	if start > 0 && isOperatorNeighbor(line[start-1]) {
		return false
	}
	if end := start + n; end < len(line) && isOperatorNeighbor(line[end]) {
		return false
	}
	return true
}

// wordStandalone reports whether the token at line[start:start+n] is a
// complete word (not embedded in an identifier or literal).
func wordStandalone(line string, start, n int) bool {
	if start > 0 && isWordByte(line[start-1]) {
		return false
	}
	if end := start + n; end < len(line) && isWordByte(line[end]) {
		return false
	}
	return true
}

// matchRules returns the rules whose token begins at line[pos] and
// passes the standalone check appropriate to the rule. Rule order is
// preserved; the longest-token-first ordering of the tables means a
// "<=" never also matches as "<".
func matchRules(line string, pos int, enabled map[Kind]bool) []tokenRule {
	var matched []tokenRule
	var matchedToken string

	tables := [][]tokenRule{tokenRules, boundaryRules, wordRules}
	for _, table := range tables {
		for _, rule := range table {
			n := len(rule.token)
			if pos+n > len(line) || line[pos:pos+n] != rule.token {
				continue
			}
			// once a token length wins, shorter tokens at the same
			// position are prefixes of it and must not match
			if matchedToken != "" && len(rule.token) < len(matchedToken) {
				continue
			}
			if !enabled[rule.kind] {
				// still record the token so a disabled longer rule
				// shadows its enabled prefix
				if matchedToken == "" || len(rule.token) > len(matchedToken) {
					matchedToken = rule.token
				}
				continue
			}
			standalone := operatorStandalone
			if rule.kind == KindBoolean {
				standalone = wordStandalone
			}
			if !standalone(line, pos, n) {
				continue
			}
			matched = append(matched, rule)
			matchedToken = rule.token
		}
	}
	return matched
}

// candidates expands a rule into its ordered Candidate list.
func (r tokenRule) candidates() []Candidate {
	out := make([]Candidate, 0, len(r.replacements))
	for _, rep := range r.replacements {
		desc := fmt.Sprintf("Replaced %s with %s", r.token, rep)
		if rep == "" {
			desc = fmt.Sprintf("Removed %s", r.token)
		}
		out = append(out, Candidate{
			Kind:        r.kind,
			Original:    r.token,
			Mutated:     rep,
			Description: desc,
		})
	}
	return out
}

// numericCandidates perturbs an integer literal: off-by-one in both
// directions, negation, and the 0/1 absorbing values. Self-maps are
// dropped and duplicates collapse, so the list length varies with n.
func numericCandidates(literal string) []Candidate {
	n, err := strconv.ParseInt(literal, 10, 64)
	if err != nil {
		return nil
	}

	variants := []int64{n + 1, n - 1, -n, 0, 1}
	seen := map[int64]bool{n: true}
	var out []Candidate
	for _, v := range variants {
		if seen[v] {
			continue
		}
		seen[v] = true
		mutated := strconv.FormatInt(v, 10)
		out = append(out, Candidate{
			Kind:        KindNumeric,
			Original:    literal,
			Mutated:     mutated,
			Description: fmt.Sprintf("Replaced %s with %s", literal, mutated),
		})
	}
	return out
}

// numericLiteralAt returns the integer literal starting at line[pos],
// or "" when pos does not begin a standalone literal. Floats and
// digit-bearing identifiers are rejected.
func numericLiteralAt(line string, pos int) string {
	if pos >= len(line) || line[pos] < '0' || line[pos] > '9' {
		return ""
	}
	if pos > 0 && (isWordByte(line[pos-1]) || line[pos-1] == '.') {
		return ""
	}
	end := pos
	for end < len(line) && line[end] >= '0' && line[end] <= '9' {
		end++
	}
	if end < len(line) && (isWordByte(line[end]) || line[end] == '.') {
		return ""
	}
	return line[pos:end]
}

// removalCandidate wraps a removable statement into a Candidate.
func removalCandidate(text string) Candidate {
	return Candidate{
		Kind:        KindStatementRemoval,
		Original:    text,
		Mutated:     "",
		Description: "Removed statement",
	}
}
