package parser

import (
	"path/filepath"
	"strings"
)

// Language is the grammar used to parse a module.
type Language int

const (
	// LanguageJavaScript covers .js, .cjs, .mjs, .jsx and any extension
	// the CommonJS loader would evaluate as JavaScript.
	LanguageJavaScript Language = iota
	// LanguageTypeScript covers .ts, .cts, .mts and .tsx.
	LanguageTypeScript
	// LanguageJSON is a .json module; it is decoded, not parsed.
	LanguageJSON
	// LanguageNative is a compiled .node addon; it has no source.
	LanguageNative
)

func (l Language) String() string {
	switch l {
	case LanguageJavaScript:
		return "javascript"
	case LanguageTypeScript:
		return "typescript"
	case LanguageJSON:
		return "json"
	case LanguageNative:
		return "native"
	default:
		return "unknown"
	}
}

// HasGrammar reports whether l is parsed with tree-sitter.
func (l Language) HasGrammar() bool {
	return l == LanguageJavaScript || l == LanguageTypeScript
}

// DetectLanguage picks the grammar for a module path. Unknown extensions
// fall back to JavaScript, which is what require() does with them.
func DetectLanguage(filePath string) Language {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".ts", ".cts", ".mts", ".tsx":
		return LanguageTypeScript
	case ".json":
		return LanguageJSON
	case ".node":
		return LanguageNative
	default:
		return LanguageJavaScript
	}
}

// IsTSXFile reports whether the TypeScript grammar needs JSX support.
func IsTSXFile(filePath string) bool {
	return strings.EqualFold(filepath.Ext(filePath), ".tsx")
}
