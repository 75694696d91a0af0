// Package extractor runs the per-file pipeline: read the module source,
// parse it, and compute the module's own export names and re-export
// specifiers.
package extractor

import (
	"github.com/gnana997/cjsexports/pkg/cjs"
	"github.com/gnana997/cjsexports/pkg/jsast"
	"github.com/gnana997/cjsexports/pkg/parser"
)

// FileResult is everything known about one module on its own, before
// re-exports are followed.
type FileResult struct {
	Path     string          `json:"path"`
	Language parser.Language `json:"-"`

	// Names are the module's own export names after interop
	// classification, in first-assignment order.
	Names []string `json:"names"`

	// Exports maps each name to its recorded values. Empty for native
	// addons.
	Exports map[string][]cjs.Value `json:"exports,omitempty"`

	// Reexports lists module.exports = require(...) targets.
	Reexports []cjs.Reexport `json:"reexports,omitempty"`

	ESModule bool `json:"es_module"`

	// SyntaxError is set when the file had syntax errors and the
	// extractor was configured to tolerate them.
	SyntaxError *parser.SyntaxError `json:"syntax_error,omitempty"`
}

// Specifiers returns the re-exported specifiers in source order.
func (r *FileResult) Specifiers() []string {
	out := make([]string, len(r.Reexports))
	for i, re := range r.Reexports {
		out[i] = re.Specifier
	}
	return out
}

// RequireSite is a static require('<specifier>') call.
type RequireSite struct {
	Specifier string    `json:"specifier"`
	Loc       jsast.Loc `json:"loc"`
}

// ExportSite is a place that syntactically writes to the export object.
// Sites are found without scope analysis, so some may not contribute
// names; see Candidates.
type ExportSite struct {
	// Name is the written property, empty for whole-object assignments.
	Name string    `json:"name,omitempty"`
	Loc  jsast.Loc `json:"loc"`
	// Whole is set for module.exports = ... assignments.
	Whole bool `json:"whole,omitempty"`
}
