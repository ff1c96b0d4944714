package parser

// Language represents a programming language
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageUnknown    Language = "unknown"
)

// Supported reports whether the language has a grammar wired in.
func (l Language) Supported() bool {
	switch l {
	case LanguageGo, LanguagePython, LanguageJavaScript, LanguageTypeScript:
		return true
	}
	return false
}

// SourceInfo is the mutation-oriented view of a parsed source file:
// where operators must not fire, which statements may be removed, and
// enough function structure for reporting.
type SourceInfo struct {
	Path      string
	Language  Language
	LineCount int

	// Functions gives the declared functions in source order.
	Functions []Function

	// Protected marks comment and string-literal regions. Token
	// operators never fire inside a protected span.
	Protected []Span

	// Removable lists single-line statements that can be deleted
	// without breaking surrounding syntax (call statements and
	// increment/decrement statements).
	Removable []Statement

	// HasErrors is set when the grammar reported error nodes. The
	// engine treats such source as unparsable.
	HasErrors bool
}

// Function is a declared function or method.
type Function struct {
	Name      string
	StartLine int
	EndLine   int
	Exported  bool
}

// Span is a source region. Lines are 1-based; columns are 0-based byte
// offsets within the line. The end position is exclusive.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Contains reports whether the position (line, col) falls inside the
// span.
func (s Span) Contains(line, col int) bool {
	if line < s.StartLine || line > s.EndLine {
		return false
	}
	if line == s.StartLine && col < s.StartCol {
		return false
	}
	if line == s.EndLine && col >= s.EndCol {
		return false
	}
	return true
}

// ProtectedAt reports whether the position lies inside any protected
// span.
func (si *SourceInfo) ProtectedAt(line, col int) bool {
	for _, span := range si.Protected {
		if span.Contains(line, col) {
			return true
		}
	}
	return false
}

// Statement is a removable statement site.
type Statement struct {
	Line   int
	Column int
	Text   string
}
