// Package lang holds the supported-language table and the shared tree-sitter
// parser used by symbol and import extraction.
package lang

// Language identifies a supported source language.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
)

// extensionMap maps lowercase file extensions to languages.
var extensionMap = map[string]Language{
	".go":  LangGo,
	".py":  LangPython,
	".js":  LangJavaScript,
	".jsx": LangJavaScript,
	".mjs": LangJavaScript,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
}

// FromExtension returns the language for a file extension (".py", ".go", ...).
func FromExtension(ext string) (Language, bool) {
	l, ok := extensionMap[ext]
	return l, ok
}

// All returns every supported language.
func All() []Language {
	return []Language{LangGo, LangPython, LangJavaScript, LangTypeScript}
}

// CommentTokens returns the tokens that introduce a line comment for a
// language. The todo scanner is line-based and only needs line comments;
// markers inside block comments on their own line still match because the
// scanner looks for the token anywhere in the line.
func CommentTokens(l Language) []string {
	switch l {
	case LangPython:
		return []string{"#"}
	case LangGo, LangJavaScript, LangTypeScript:
		return []string{"//"}
	default:
		return nil
	}
}
