// Package cjs finds the statically knowable export names of a CommonJS
// module.
//
// Analyze walks a program once. Assignments such as exports.x = ...,
// module.exports = {...} and Object.defineProperty(exports, 'x', ...) are
// recorded only when every free variable they depend on (exports, module,
// Object, ...) turns out to be an unshadowed module-level reference.
// Shadowing is decided by ScopeStack when scopes close, so declarations
// that appear after a use still shadow it.
//
// Only code that runs while the module loads is considered: the program
// body and the bodies of immediately invoked function expressions. Other
// function bodies are skipped.
package cjs

import (
	"slices"

	"github.com/gnana997/cjsexports/pkg/jsast"
)

// Result is the analysis of a single file.
type Result struct {
	// Exports maps each statically assigned name to every value assigned
	// to it, in source order of resolution.
	Exports map[string][]Value
	// Reexports lists the modules whose whole export surface is
	// re-exported through module.exports = require(...).
	Reexports []Reexport
	// ESModule is the interop flag computed by IsESModule.
	ESModule bool

	order []string
}

// Reexport is a module.exports = require('<Specifier>') site.
type Reexport struct {
	Specifier string    `json:"specifier"`
	Loc       jsast.Loc `json:"loc"`
}

// Specifiers returns the re-exported specifiers in source order.
func (r *Result) Specifiers() []string {
	out := make([]string, len(r.Reexports))
	for i, re := range r.Reexports {
		out[i] = re.Specifier
	}
	return out
}

// RawNames returns every recorded name, including a default the interop
// rules would drop, in first-recorded order.
func (r *Result) RawNames() []string {
	return slices.Clone(r.order)
}

// Names returns the export names after ESM interop classification.
func (r *Result) Names() []string {
	return InteropNames(r.order, r.ESModule)
}

func (r *Result) record(name string, v Value) {
	if _, ok := r.Exports[name]; !ok {
		r.order = append(r.order, name)
	}
	r.Exports[name] = append(r.Exports[name], v)
}

func (r *Result) reexport(specifier string, at jsast.Loc) {
	for _, re := range r.Reexports {
		if re.Specifier == specifier {
			return
		}
	}
	r.Reexports = append(r.Reexports, Reexport{Specifier: specifier, Loc: at})
}

// Analyze runs the single-file analysis over prog. The only errors it
// returns wrap ErrInternal.
func Analyze(prog *jsast.Program) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*InternalError)
			if !ok {
				panic(r)
			}
			res, err = nil, ie
		}
	}()

	w := &walker{
		scopes: NewScopeStack(),
		result: &Result{Exports: make(map[string][]Value)},
	}
	w.program(prog)

	if w.scopes.Depth() != 0 {
		fail("malformed scope chain: %d scopes left open", w.scopes.Depth())
	}
	if w.form != formNone {
		fail("special form %s left active", w.form)
	}

	w.result.ESModule = IsESModule(w.result.Exports)
	return w.result, nil
}

// form marks how the next node is visited.
type form uint8

const (
	formNone form = iota
	// formPattern: the node is a binding target and declares names.
	formPattern
	// formIIFE: the node is the callee of an immediately invoked call.
	formIIFE
)

func (f form) String() string {
	switch f {
	case formPattern:
		return "pattern"
	case formIIFE:
		return "iife"
	default:
		return "none"
	}
}

type walker struct {
	scopes    *ScopeStack
	declKinds []ScopeKind
	form      form
	result    *Result
}

// withForm visits under f; whatever fn visits must consume it.
func (w *walker) withForm(f form, fn func()) {
	if w.form != formNone {
		fail("special form %s entered while %s is active", f, w.form)
	}
	w.form = f
	fn()
	if w.form != formNone {
		fail("special form %s was not consumed", f)
	}
}

func (w *walker) expectForm(f form) {
	if w.form != f {
		fail("expected special form %s, have %s", f, w.form)
	}
	w.form = formNone
}

func (w *walker) consumeForm(f form) bool {
	if w.form != f {
		return false
	}
	w.form = formNone
	return true
}

func (w *walker) withDeclKind(kind ScopeKind, fn func()) {
	w.declKinds = append(w.declKinds, kind)
	fn()
	w.declKinds = w.declKinds[:len(w.declKinds)-1]
}

func (w *walker) declare(name string) {
	if len(w.declKinds) == 0 {
		fail("binding %q declared outside a declaration", name)
	}
	w.scopes.Declare(w.declKinds[len(w.declKinds)-1], name)
}

func (w *walker) program(prog *jsast.Program) {
	w.scopes.Open(FunctionScope, func() {
		w.scopes.Open(BlockScope, func() {
			for _, stmt := range prog.Body {
				w.walk(stmt)
			}
		})
	})
}

func (w *walker) walk(n jsast.Node) {
	if n == nil {
		return
	}

	switch n := n.(type) {
	case *jsast.Identifier:
		if w.consumeForm(formPattern) {
			w.declare(n.Name)
		}

	case *jsast.RestElement:
		w.expectForm(formPattern)
		w.withForm(formPattern, func() { w.walk(n.Argument) })

	case *jsast.AssignmentPattern:
		w.expectForm(formPattern)
		w.withForm(formPattern, func() { w.walk(n.Left) })
		w.walk(n.Right)

	case *jsast.ObjectPattern:
		w.expectForm(formPattern)
		for _, p := range n.Properties {
			w.withForm(formPattern, func() { w.walk(p) })
		}

	case *jsast.ArrayPattern:
		w.expectForm(formPattern)
		for _, el := range n.Elements {
			if el != nil {
				w.withForm(formPattern, func() { w.walk(el) })
			}
		}

	case *jsast.Property:
		inPattern := w.consumeForm(formPattern)
		if n.Computed {
			w.walk(n.Key)
		}
		if inPattern {
			w.withForm(formPattern, func() { w.walk(n.Value) })
		} else {
			w.walk(n.Value)
		}

	case *jsast.VariableDeclaration:
		kind := BlockScope
		if n.Kind == jsast.DeclVar {
			kind = FunctionScope
		}
		w.withDeclKind(kind, func() {
			for _, d := range n.Declarations {
				w.withForm(formPattern, func() { w.walk(d.Target) })
				w.walk(d.Init)
			}
		})

	case *jsast.BlockStatement:
		w.scopes.Open(BlockScope, func() {
			for _, stmt := range n.Body {
				w.walk(stmt)
			}
		})

	case *jsast.CatchClause:
		w.scopes.Open(BlockScope, func() {
			if n.Param != nil {
				w.withDeclKind(BlockScope, func() {
					w.withForm(formPattern, func() { w.walk(n.Param) })
				})
			}
			if n.Body != nil {
				w.walk(n.Body)
			}
		})

	case *jsast.Function:
		w.function(n)

	case *jsast.Class:
		if n.IsDeclaration && n.Name != nil {
			w.scopes.Declare(BlockScope, n.Name.Name)
		}
		w.walk(n.SuperClass)

	case *jsast.ForIn:
		w.loop(n.Left, func() {
			if decl, ok := n.Left.(*jsast.VariableDeclaration); ok {
				w.walk(decl)
			} else {
				w.target(n.Left)
			}
			w.walk(n.Right)
			w.walk(n.Body)
		})

	case *jsast.Other:
		if n.Kind == "for_statement" && len(n.Children) > 0 {
			w.loop(n.Children[0], func() {
				for _, c := range n.Children {
					w.walk(c)
				}
			})
			return
		}
		for _, c := range n.Children {
			w.walk(c)
		}

	case *jsast.AssignmentExpression:
		w.assignment(n)
		w.target(n.Left)
		w.walk(n.Right)

	case *jsast.CallExpression:
		for _, arg := range n.Arguments {
			w.walk(arg)
		}
		w.call(n)
		if isIIFE(n) {
			w.withForm(formIIFE, func() { w.walk(n.Callee) })
		} else {
			w.walk(n.Callee)
		}

	default:
		for _, c := range jsast.Children(n) {
			w.walk(c)
		}
	}
}

// loop runs fn inside a block-scoped region when head declares let or
// const bindings, which belong to the loop rather than the enclosing block.
func (w *walker) loop(head jsast.Node, fn func()) {
	if decl, ok := head.(*jsast.VariableDeclaration); ok && decl.Kind != jsast.DeclVar {
		w.scopes.Open(BlockScope, fn)
		return
	}
	fn()
}

// function declares a function's name, and for an immediately invoked
// function also runs its body in a fresh function scope.
func (w *walker) function(fn *jsast.Function) {
	if !w.consumeForm(formIIFE) {
		if fn.Kind == jsast.FuncDeclaration && fn.Name != nil {
			w.scopes.Declare(BlockScope, fn.Name.Name)
		}
		return
	}

	w.scopes.Open(FunctionScope, func() {
		if fn.Kind != jsast.FuncArrow {
			w.scopes.Declare(FunctionScope, "this")
		}
		w.withDeclKind(FunctionScope, func() {
			for _, p := range fn.Params {
				w.withForm(formPattern, func() { w.walk(p) })
			}
		})
		w.scopes.Open(BlockScope, func() {
			if fn.Kind != jsast.FuncArrow && fn.Name != nil {
				w.scopes.Declare(FunctionScope, fn.Name.Name)
			}
			w.walk(fn.Body)
		})
	})
}

// target visits the left side of an assignment. Destructuring targets
// declare nothing, but their computed keys and defaults are evaluated.
func (w *walker) target(n jsast.Node) {
	switch n := n.(type) {
	case *jsast.ObjectPattern:
		for _, p := range n.Properties {
			if prop, ok := p.(*jsast.Property); ok {
				if prop.Computed {
					w.walk(prop.Key)
				}
				w.target(prop.Value)
				continue
			}
			w.target(p)
		}
	case *jsast.ArrayPattern:
		for _, el := range n.Elements {
			w.target(el)
		}
	case *jsast.AssignmentPattern:
		w.target(n.Left)
		w.walk(n.Right)
	case *jsast.RestElement:
		w.target(n.Argument)
	default:
		w.walk(n)
	}
}

// assignment records export sites of the forms
//
//	module.exports = {...} | require('...')
//	exports.name = ..., exports['name'] = ...
//	module.exports.name = ..., module.exports['name'] = ...
//	this.name = ...
func (w *walker) assignment(n *jsast.AssignmentExpression) {
	if isStaticMember(n.Left, "module", "exports") {
		w.spread(n.Right, false, n.Pos(), "module")
		return
	}
	m, ok := n.Left.(*jsast.MemberExpression)
	if !ok {
		return
	}

	if !m.Computed {
		prop, ok := m.Property.(*jsast.Identifier)
		if !ok {
			return
		}
		switch {
		case identifiesName(m.Object, "exports"):
			w.exportable(prop.Name, n.Right, false, n.Pos(), "exports")
		case identifiesName(m.Object, "this"):
			w.exportable(prop.Name, n.Right, false, n.Pos(), "this")
		case isStaticMember(m.Object, "module", "exports"):
			w.exportable(prop.Name, n.Right, false, n.Pos(), "module")
		}
		return
	}

	name, ok := literalName(m.Property)
	if !ok {
		return
	}
	if base := exportTarget(m.Object); base != "" {
		w.exportable(name, n.Right, false, n.Pos(), base)
	}
}

// call records Object.defineProperty, Reflect.defineProperty and
// Object.defineProperties calls on the export object.
func (w *walker) call(n *jsast.CallExpression) {
	args := n.Arguments

	if base := definePropertyBase(n.Callee); base != "" {
		if len(args) < 3 {
			return
		}
		target := exportTarget(args[0])
		if target == "" {
			return
		}
		if name, ok := literalName(args[1]); ok {
			w.exportable(name, args[2], true, n.Pos(), base, target)
		}
		return
	}

	if isDefineProperties(n.Callee) && len(args) >= 2 {
		if target := exportTarget(args[0]); target != "" {
			if obj, ok := args[1].(*jsast.ObjectExpression); ok {
				w.spread(obj, true, n.Pos(), target, "Object")
			}
		}
	}
}

// exportable records name once every free variable in required resolves
// globally.
func (w *walker) exportable(name string, value jsast.Node, asDescriptor bool, at jsast.Loc, required ...string) {
	w.scopes.whenGlobal(required, func() {
		v := evaluate(value, asDescriptor)
		v.Loc = at
		w.result.record(name, v)
	})
}

// spread records every static property of an object literal provider, or
// a re-export when the provider is require('<specifier>').
func (w *walker) spread(provider jsast.Node, asDescriptor bool, at jsast.Loc, required ...string) {
	if obj, ok := provider.(*jsast.ObjectExpression); ok {
		type found struct {
			name  string
			value jsast.Node
			at    jsast.Loc
		}
		var props []found
		for _, p := range obj.Properties {
			prop, ok := p.(*jsast.Property)
			if !ok {
				continue
			}
			if name, ok := keyName(prop); ok {
				props = append(props, found{name: name, value: prop.Value, at: prop.Pos()})
			}
		}
		w.scopes.whenGlobal(required, func() {
			for _, p := range props {
				v := evaluate(p.value, asDescriptor)
				v.Loc = p.at
				w.result.record(p.name, v)
			}
		})
		return
	}

	if asDescriptor {
		return
	}
	if specifier, ok := requireSpecifier(provider); ok {
		names := append(slices.Clone(required), "require")
		w.scopes.whenGlobal(names, func() {
			w.result.reexport(specifier, at)
		})
	}
}
