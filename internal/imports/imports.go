// Package imports extracts import statements from source files and resolves
// them to project-local files, producing the directed edges the related-files
// queries traverse.
package imports

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"devmind/internal/lang"
)

// ErrUnparsable is returned when a file's syntax tree contains errors.
var ErrUnparsable = errors.New("source failed to parse")

// Edge is a directed import relationship. Target is empty for external or
// unresolvable imports; such edges are kept for display but never traversed.
type Edge struct {
	RawText string `json:"rawText"`
	Target  string `json:"target,omitempty"`
}

// FileSet is the set of indexed project-relative paths, used by resolvers to
// confirm that a candidate target actually exists in the project.
type FileSet map[string]struct{}

// NewFileSet builds a FileSet from a list of project-relative paths.
func NewFileSet(paths []string) FileSet {
	fs := make(FileSet, len(paths))
	for _, p := range paths {
		fs[p] = struct{}{}
	}
	return fs
}

// Contains reports whether the set holds the given path.
func (fs FileSet) Contains(p string) bool {
	_, ok := fs[p]
	return ok
}

// Resolver maps one raw import text to a project-local file, following the
// module-resolution convention of its language.
type Resolver interface {
	// Resolve returns the project-relative target path and true when the
	// import refers to a file in the set; false for external imports.
	Resolve(sourceFile, importText string, files FileSet) (string, bool)
}

// Extractor extracts import statements and resolves them to edges.
// Not safe for concurrent use; each worker owns one.
type Extractor struct {
	parser    *lang.Parser
	resolvers map[lang.Language]Resolver
}

// NewExtractor creates an import extractor. goModulePath is the module path
// from the project's go.mod, or empty when the project has none.
func NewExtractor(goModulePath string) *Extractor {
	return &Extractor{
		parser: lang.NewParser(),
		resolvers: map[lang.Language]Resolver{
			lang.LangGo:         &goResolver{modulePath: goModulePath},
			lang.LangPython:     &pythonResolver{},
			lang.LangJavaScript: &relativePathResolver{},
			lang.LangTypeScript: &relativePathResolver{},
		},
	}
}

// Extract parses source and returns one edge per import statement, resolved
// against the given file set. Returns ErrUnparsable for malformed source.
func (e *Extractor) Extract(ctx context.Context, sourceFile string, source []byte, l lang.Language, files FileSet) ([]Edge, error) {
	root, err := e.parser.Parse(ctx, source, l)
	if err != nil {
		return nil, err
	}
	if root == nil || root.HasError() {
		return nil, ErrUnparsable
	}

	raw := rawImports(root, source, l)
	resolver := e.resolvers[l]

	edges := make([]Edge, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, text := range raw {
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true

		edge := Edge{RawText: text}
		if resolver != nil {
			if target, ok := resolver.Resolve(sourceFile, text, files); ok && target != sourceFile {
				edge.Target = target
			}
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// rawImports walks the AST and collects the import texts for a language.
func rawImports(root *sitter.Node, source []byte, l lang.Language) []string {
	var texts []string

	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}

		switch l {
		case lang.LangGo:
			if node.Type() == "import_spec" {
				if s := stringChild(node, source); s != "" {
					texts = append(texts, s)
				}
			}
		case lang.LangPython:
			switch node.Type() {
			case "import_statement":
				for i := uint32(0); i < node.NamedChildCount(); i++ {
					child := node.NamedChild(int(i))
					if child == nil {
						continue
					}
					if child.Type() == "aliased_import" {
						child = child.ChildByFieldName("name")
					}
					if child != nil && child.Type() == "dotted_name" {
						texts = append(texts, nodeText(child, source))
					}
				}
			case "import_from_statement":
				if mod := node.ChildByFieldName("module_name"); mod != nil {
					texts = append(texts, nodeText(mod, source))
				}
			}
		case lang.LangJavaScript, lang.LangTypeScript:
			if node.Type() == "import_statement" || node.Type() == "export_statement" {
				if src := node.ChildByFieldName("source"); src != nil {
					texts = append(texts, stripQuotes(nodeText(src, source)))
				}
			}
		}

		for i := uint32(0); i < node.ChildCount(); i++ {
			walk(node.Child(int(i)))
		}
	}
	walk(root)
	return texts
}

func nodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// stringChild returns the unquoted value of a node's string literal child.
func stringChild(node *sitter.Node, source []byte) string {
	for i := uint32(0); i < node.ChildCount(); i++ {
		child := node.Child(int(i))
		if child != nil && child.Type() == "interpreted_string_literal" {
			return stripQuotes(nodeText(child, source))
		}
	}
	return ""
}

func stripQuotes(s string) string {
	return strings.Trim(s, `"'`)
}

// goResolver resolves module-local Go import paths to a file in the imported
// package directory. Go imports name packages, not files; the edge targets
// the lexicographically first .go file of the directory so traversal has a
// stable, deterministic endpoint.
type goResolver struct {
	modulePath string
}

func (r *goResolver) Resolve(sourceFile, importText string, files FileSet) (string, bool) {
	if r.modulePath == "" {
		return "", false
	}

	var dir string
	switch {
	case importText == r.modulePath:
		dir = ""
	case strings.HasPrefix(importText, r.modulePath+"/"):
		dir = strings.TrimPrefix(importText, r.modulePath+"/")
	default:
		return "", false
	}

	var candidates []string
	for p := range files {
		if !strings.HasSuffix(p, ".go") {
			continue
		}
		if path.Dir(p) == dir || (dir == "" && path.Dir(p) == ".") {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

// pythonResolver resolves dotted module paths relative to the project root
// and to the importing file's directory, including leading-dot relative
// imports.
type pythonResolver struct{}

func (r *pythonResolver) Resolve(sourceFile, importText string, files FileSet) (string, bool) {
	sourceDir := path.Dir(sourceFile)

	if strings.HasPrefix(importText, ".") {
		// Relative import: one dot is the current package, each extra dot
		// goes up one directory.
		rest := strings.TrimLeft(importText, ".")
		ups := len(importText) - len(rest) - 1
		base := sourceDir
		for i := 0; i < ups; i++ {
			base = path.Dir(base)
		}
		return lookupPython(base, rest, files)
	}

	// Absolute: try project root first, then the importing file's directory
	// (scripts that import siblings without a package prefix).
	if target, ok := lookupPython("", importText, files); ok {
		return target, true
	}
	return lookupPython(sourceDir, importText, files)
}

func lookupPython(baseDir, dotted string, files FileSet) (string, bool) {
	rel := strings.ReplaceAll(dotted, ".", "/")

	candidates := []string{
		path.Join(baseDir, rel+".py"),
		path.Join(baseDir, rel, "__init__.py"),
	}
	if rel == "" {
		candidates = []string{path.Join(baseDir, "__init__.py")}
	}

	for _, c := range candidates {
		c = path.Clean(c)
		if files.Contains(c) {
			return c, true
		}
	}
	return "", false
}

// relativePathResolver resolves ./ and ../ specifiers the way JavaScript and
// TypeScript module resolution does, trying the written path, known source
// extensions, and directory index files.
type relativePathResolver struct{}

var jsExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs"}

func (r *relativePathResolver) Resolve(sourceFile, importText string, files FileSet) (string, bool) {
	if !strings.HasPrefix(importText, "./") && !strings.HasPrefix(importText, "../") {
		return "", false // bare specifiers are external packages
	}

	base := path.Clean(path.Join(path.Dir(sourceFile), importText))

	if files.Contains(base) {
		return base, true
	}
	for _, ext := range jsExtensions {
		if files.Contains(base + ext) {
			return base + ext, true
		}
	}
	for _, ext := range jsExtensions {
		idx := path.Join(base, "index"+ext)
		if files.Contains(idx) {
			return idx, true
		}
	}
	return "", false
}
