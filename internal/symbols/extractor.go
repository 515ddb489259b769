// Package symbols extracts function and method definitions from source text
// using tree-sitter.
package symbols

import (
	"context"
	"errors"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"devmind/internal/lang"
)

// ErrUnparsable is returned when a file's syntax tree contains errors.
// Callers mark the file degraded and continue; it is never a pipeline failure.
var ErrUnparsable = errors.New("source failed to parse")

// FunctionRecord represents one extracted function or method definition.
type FunctionRecord struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Docstring string `json:"docstring,omitempty"`
	StartLine int    `json:"startLine"` // 1-indexed
	EndLine   int    `json:"endLine"`   // 1-indexed
}

// Extractor extracts function definitions from source files.
// Not safe for concurrent use; each worker owns one.
type Extractor struct {
	parser *lang.Parser
}

// NewExtractor creates a new function extractor.
func NewExtractor() *Extractor {
	return &Extractor{parser: lang.NewParser()}
}

// Extract parses source and returns all function and method definitions,
// top-level and nested. Returns ErrUnparsable for malformed source.
func (e *Extractor) Extract(ctx context.Context, source []byte, l lang.Language) ([]FunctionRecord, error) {
	root, err := e.parser.Parse(ctx, source, l)
	if err != nil {
		return nil, err
	}
	if root == nil || root.HasError() {
		return nil, ErrUnparsable
	}

	nodes := findNodes(root, functionNodeTypes(l))

	records := make([]FunctionRecord, 0, len(nodes))
	for _, node := range nodes {
		name := functionName(node, source)
		if name == "" {
			continue // anonymous functions are not indexed
		}
		records = append(records, FunctionRecord{
			Name:      name,
			Signature: signature(node, source, l),
			Docstring: docstring(node, source, l),
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
		})
	}
	return records, nil
}

// functionNodeTypes returns the AST node types that define named functions
// or methods for a language.
func functionNodeTypes(l lang.Language) []string {
	switch l {
	case lang.LangGo:
		return []string{"function_declaration", "method_declaration"}
	case lang.LangPython:
		return []string{"function_definition"}
	case lang.LangJavaScript, lang.LangTypeScript:
		return []string{"function_declaration", "generator_function_declaration", "method_definition"}
	default:
		return nil
	}
}

func functionName(node *sitter.Node, source []byte) string {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	return string(source[nameNode.StartByte():nameNode.EndByte()])
}

// signature returns the definition header as written: the first source line
// of the node, trimmed of the opening brace or trailing colon.
func signature(node *sitter.Node, source []byte, l lang.Language) string {
	text := source[node.StartByte():node.EndByte()]

	line := text
	if idx := strings.IndexAny(string(text), "\n{"); idx >= 0 {
		line = text[:idx]
	}

	sig := strings.TrimSpace(string(line))
	if l == lang.LangPython {
		sig = strings.TrimSuffix(sig, ":")
	}
	return sig
}

// docstring extracts the documentation comment for a function. Python uses
// the leading string expression of the body; other languages use the comment
// block immediately above the definition.
func docstring(node *sitter.Node, source []byte, l lang.Language) string {
	if l == lang.LangPython {
		return pythonDocstring(node, source)
	}
	return leadingComment(node, source)
}

func pythonDocstring(node *sitter.Node, source []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}

	first := body.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}

	str := first.NamedChild(0)
	if str == nil || str.Type() != "string" {
		return ""
	}

	return stripPythonQuotes(string(source[str.StartByte():str.EndByte()]))
}

func stripPythonQuotes(s string) string {
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(s)
}

// leadingComment collects consecutive comment siblings that end directly
// above the definition and joins them into one docstring.
func leadingComment(node *sitter.Node, source []byte) string {
	// Exported declarations hang under an export_statement; the comment is
	// a sibling of the wrapper, not of the declaration itself
	if parent := node.Parent(); parent != nil && parent.Type() == "export_statement" {
		node = parent
	}

	var lines []string

	expectRow := node.StartPoint().Row
	for prev := node.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		if prev.Type() != "comment" {
			break
		}
		// Only comments immediately adjacent to the definition count
		if prev.EndPoint().Row+1 != expectRow {
			break
		}
		text := strings.TrimSpace(string(source[prev.StartByte():prev.EndByte()]))
		text = stripCommentMarkers(text)
		lines = append([]string{text}, lines...)
		expectRow = prev.StartPoint().Row
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func stripCommentMarkers(s string) string {
	s = strings.TrimPrefix(s, "//")
	if strings.HasPrefix(s, "/*") {
		s = strings.TrimPrefix(s, "/*")
		s = strings.TrimSuffix(s, "*/")
	}
	return strings.TrimSpace(s)
}

// findNodes walks the AST and returns all nodes of the given types, in
// document order.
func findNodes(root *sitter.Node, types []string) []*sitter.Node {
	if len(types) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	var result []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		if wanted[node.Type()] {
			result = append(result, node)
		}
		for i := uint32(0); i < node.ChildCount(); i++ {
			walk(node.Child(int(i)))
		}
	}
	walk(root)
	return result
}
