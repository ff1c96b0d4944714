// Package parser locates mutation sites in source code using
// tree-sitter grammars for Go, Python, and JavaScript/TypeScript.
package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// Parser parses source code using tree-sitter
type Parser struct {
	goParser *sitter.Parser
	pyParser *sitter.Parser
	jsParser *sitter.Parser
}

// NewParser creates a new parser with all language support
func NewParser() *Parser {
	goParser := sitter.NewParser()
	goParser.SetLanguage(golang.GetLanguage())

	pyParser := sitter.NewParser()
	pyParser.SetLanguage(python.GetLanguage())

	jsParser := sitter.NewParser()
	jsParser.SetLanguage(javascript.GetLanguage())

	return &Parser{
		goParser: goParser,
		pyParser: pyParser,
		jsParser: jsParser,
	}
}

// ParseFile parses a single file from disk
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*SourceInfo, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	lang := DetectLanguage(filePath)
	if lang == LanguageUnknown {
		return nil, fmt.Errorf("unsupported language for file: %s", filePath)
	}

	return p.ParseContent(ctx, filePath, string(content), lang)
}

// ParseContent parses source code content and extracts mutation sites
func (p *Parser) ParseContent(ctx context.Context, filePath, content string, lang Language) (*SourceInfo, error) {
	var parser *sitter.Parser
	switch lang {
	case LanguageGo:
		parser = p.goParser
	case LanguagePython:
		parser = p.pyParser
	case LanguageJavaScript, LanguageTypeScript:
		parser = p.jsParser // JS grammar gives basic TS support
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}

	tree, err := parser.ParseCtx(ctx, nil, []byte(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	defer tree.Close()

	info := &SourceInfo{
		Path:      filePath,
		Language:  lang,
		LineCount: strings.Count(content, "\n") + 1,
		Functions: make([]Function, 0),
		Protected: make([]Span, 0),
		Removable: make([]Statement, 0),
		HasErrors: tree.RootNode().HasError(),
	}

	switch lang {
	case LanguageGo:
		p.extractGoSites(tree.RootNode(), []byte(content), info)
	case LanguagePython:
		p.extractPythonSites(tree.RootNode(), []byte(content), info)
	case LanguageJavaScript, LanguageTypeScript:
		p.extractJSSites(tree.RootNode(), []byte(content), info)
	}

	return info, nil
}

// extractGoSites collects protected regions, removable statements, and
// functions from Go source
func (p *Parser) extractGoSites(node *sitter.Node, source []byte, info *SourceInfo) {
	cursor := sitter.NewTreeCursor(node)
	defer cursor.Close()

	p.walkTree(cursor, func(n *sitter.Node) {
		switch n.Type() {
		case "comment", "interpreted_string_literal", "raw_string_literal", "rune_literal":
			info.Protected = append(info.Protected, nodeSpan(n))
		case "function_declaration", "method_declaration":
			if fn := parseFunction(n, source); fn != nil {
				fn.Exported = fn.Name != "" && strings.ToUpper(fn.Name[:1]) == fn.Name[:1]
				info.Functions = append(info.Functions, *fn)
			}
		case "expression_statement":
			child := n.NamedChild(0)
			if child != nil && child.Type() == "call_expression" {
				appendRemovable(info, n, source)
			}
		case "inc_statement", "dec_statement":
			appendRemovable(info, n, source)
		}
	})
}

// extractPythonSites collects sites from Python source
func (p *Parser) extractPythonSites(node *sitter.Node, source []byte, info *SourceInfo) {
	cursor := sitter.NewTreeCursor(node)
	defer cursor.Close()

	p.walkTree(cursor, func(n *sitter.Node) {
		switch n.Type() {
		case "comment", "string":
			info.Protected = append(info.Protected, nodeSpan(n))
		case "function_definition":
			if fn := parseFunction(n, source); fn != nil {
				fn.Exported = !strings.HasPrefix(fn.Name, "_")
				info.Functions = append(info.Functions, *fn)
			}
		case "expression_statement":
			child := n.NamedChild(0)
			if child != nil && child.Type() == "call" {
				appendRemovable(info, n, source)
			}
		}
	})
}

// extractJSSites collects sites from JavaScript/TypeScript source
func (p *Parser) extractJSSites(node *sitter.Node, source []byte, info *SourceInfo) {
	cursor := sitter.NewTreeCursor(node)
	defer cursor.Close()

	p.walkTree(cursor, func(n *sitter.Node) {
		switch n.Type() {
		case "comment", "string", "template_string", "regex":
			info.Protected = append(info.Protected, nodeSpan(n))
		case "function_declaration", "method_definition":
			if fn := parseFunction(n, source); fn != nil {
				fn.Exported = true
				info.Functions = append(info.Functions, *fn)
			}
		case "expression_statement":
			child := n.NamedChild(0)
			if child != nil && (child.Type() == "call_expression" || child.Type() == "update_expression") {
				appendRemovable(info, n, source)
			}
		}
	})
}

// parseFunction extracts the name and line range common to all
// supported grammars
func parseFunction(node *sitter.Node, source []byte) *Function {
	fn := &Function{
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
	}

	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		fn.Name = nameNode.Content(source)
	}
	if fn.Name == "" {
		return nil
	}
	return fn
}

// appendRemovable records a statement-removal site. Only single-line
// statements qualify; the executor substitutes fragments within one
// line.
func appendRemovable(info *SourceInfo, n *sitter.Node, source []byte) {
	if n.StartPoint().Row != n.EndPoint().Row {
		return
	}
	info.Removable = append(info.Removable, Statement{
		Line:   int(n.StartPoint().Row) + 1,
		Column: int(n.StartPoint().Column),
		Text:   n.Content(source),
	})
}

// nodeSpan converts a node's extent to a Span
func nodeSpan(n *sitter.Node) Span {
	return Span{
		StartLine: int(n.StartPoint().Row) + 1,
		StartCol:  int(n.StartPoint().Column),
		EndLine:   int(n.EndPoint().Row) + 1,
		EndCol:    int(n.EndPoint().Column),
	}
}

// walkTree walks the tree and calls fn for each node
func (p *Parser) walkTree(cursor *sitter.TreeCursor, fn func(*sitter.Node)) {
	for {
		fn(cursor.CurrentNode())

		if cursor.GoToFirstChild() {
			continue
		}

		for {
			if cursor.GoToNextSibling() {
				break
			}
			if !cursor.GoToParent() {
				return
			}
		}
	}
}

// DetectLanguage detects language from file extension
func DetectLanguage(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".go":
		return LanguageGo
	case ".py":
		return LanguagePython
	case ".js", ".jsx", ".mjs":
		return LanguageJavaScript
	case ".ts", ".tsx":
		return LanguageTypeScript
	default:
		return LanguageUnknown
	}
}

// ParseLanguage normalizes a user-supplied language tag.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "go", "golang":
		return LanguageGo, nil
	case "python", "py":
		return LanguagePython, nil
	case "javascript", "js":
		return LanguageJavaScript, nil
	case "typescript", "ts":
		return LanguageTypeScript, nil
	default:
		return LanguageUnknown, fmt.Errorf("unsupported language: %q", s)
	}
}
