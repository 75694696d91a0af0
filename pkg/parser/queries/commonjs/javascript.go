// Package commonjs holds tree-sitter query patterns for CommonJS module
// syntax. The patterns only use node types shared by the JavaScript and
// TypeScript grammars, so one source serves both.
package commonjs

// RequireQueries matches static require() calls whose first argument is a
// string literal.
//
// Captures:
//   - @require.call   - the whole call expression
//   - @require.source - the specifier string literal (quotes included)
const RequireQueries = `
(call_expression
  function: (identifier) @_fn (#eq? @_fn "require")
  arguments: (arguments . (string) @require.source)
) @require.call
`

// ExportSiteQueries matches the syntactic shapes that can write to the
// module's export object. The matches ignore scoping, so a site found here
// may still be rejected by the analyzer when exports or module is shadowed.
//
// Captures:
//   - @export.site  - the assignment or call expression
//   - @export.name  - the exported property (identifier or string literal)
//   - @export.whole - a module.exports assignment
const ExportSiteQueries = `
; exports.foo = ...
(assignment_expression
  left: (member_expression
    object: (identifier) @_obj (#eq? @_obj "exports")
    property: (property_identifier) @export.name)
) @export.site

; exports['foo'] = ...
(assignment_expression
  left: (subscript_expression
    object: (identifier) @_obj (#eq? @_obj "exports")
    index: (string) @export.name)
) @export.site

; this.foo = ...
(assignment_expression
  left: (member_expression
    object: (this)
    property: (property_identifier) @export.name)
) @export.site

; module.exports.foo = ...
(assignment_expression
  left: (member_expression
    object: (member_expression
      object: (identifier) @_mod (#eq? @_mod "module")
      property: (property_identifier) @_exp (#eq? @_exp "exports"))
    property: (property_identifier) @export.name)
) @export.site

; module.exports = ...
(assignment_expression
  left: (member_expression
    object: (identifier) @_mod (#eq? @_mod "module")
    property: (property_identifier) @_exp (#eq? @_exp "exports"))
) @export.whole

; Object.defineProperty(exports, 'foo', ...) and Reflect.defineProperty
(call_expression
  function: (member_expression
    object: (identifier) @_obj (#any-of? @_obj "Object" "Reflect")
    property: (property_identifier) @_fn (#eq? @_fn "defineProperty"))
  arguments: (arguments . (_) . (string) @export.name)
) @export.site
`
