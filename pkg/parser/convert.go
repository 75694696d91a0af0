package parser

import (
	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/cjsexports/pkg/jsast"
)

// Convert builds a jsast program from a tree-sitter program node. Both the
// JavaScript and TypeScript grammars are accepted; type-only syntax is
// dropped and TypeScript expression wrappers are unwrapped.
func Convert(root *ts.Node, source []byte) *jsast.Program {
	c := converter{src: source}
	return &jsast.Program{Span: span(root), Body: c.list(root)}
}

type converter struct {
	src []byte
}

// typeOnly lists TypeScript nodes with no runtime behaviour.
var typeOnly = map[string]bool{
	"type_annotation":           true,
	"type_arguments":            true,
	"type_parameters":           true,
	"interface_declaration":     true,
	"type_alias_declaration":    true,
	"ambient_declaration":       true,
	"function_signature":        true,
	"abstract_method_signature": true,
	"implements_clause":         true,
	"accessibility_modifier":    true,
	"override_modifier":         true,
	"asserts_annotation":        true,
	"omitting_type_annotation":  true,
	"opting_type_annotation":    true,
	"adding_type_annotation":    true,
}

func loc(n *ts.Node) jsast.Loc {
	p := n.StartPosition()
	return jsast.Loc{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func span(n *ts.Node) jsast.Span {
	return jsast.Span{Start: loc(n)}
}

// namedChildren returns the named, non-extra children of n.
func namedChildren(n *ts.Node) []*ts.Node {
	var out []*ts.Node
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c == nil || c.IsExtra() {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (c *converter) list(n *ts.Node) []jsast.Node {
	var out []jsast.Node
	for _, child := range namedChildren(n) {
		if conv := c.node(child); conv != nil {
			out = append(out, conv)
		}
	}
	return out
}

func (c *converter) field(n *ts.Node, name string) jsast.Node {
	f := n.ChildByFieldName(name)
	if f == nil {
		return nil
	}
	return c.node(f)
}

func (c *converter) other(n *ts.Node) *jsast.Other {
	return &jsast.Other{Span: span(n), Kind: n.Kind(), Children: c.list(n)}
}

func (c *converter) ident(n *ts.Node) *jsast.Identifier {
	return &jsast.Identifier{Span: span(n), Name: n.Utf8Text(c.src)}
}

func (c *converter) node(n *ts.Node) jsast.Node {
	if n == nil || n.IsExtra() {
		return nil
	}
	kind := n.Kind()
	if typeOnly[kind] {
		return nil
	}

	switch kind {
	case "statement_block", "class_static_block":
		return c.block(n)
	case "switch_body":
		// Case clauses share one block-scoped region.
		return &jsast.BlockStatement{Span: span(n), Body: c.list(n)}
	case "expression_statement":
		var expr jsast.Node
		if kids := namedChildren(n); len(kids) > 0 {
			expr = c.node(kids[0])
		}
		return &jsast.ExpressionStatement{Span: span(n), Expression: expr}
	case "variable_declaration", "lexical_declaration":
		return c.declaration(n)
	case "variable_declarator":
		return c.declarator(n)

	case "function_declaration", "generator_function_declaration":
		return c.function(n, jsast.FuncDeclaration)
	case "function_expression", "function", "generator_function":
		return c.function(n, jsast.FuncExpression)
	case "arrow_function":
		return c.function(n, jsast.FuncArrow)
	case "method_definition":
		return c.function(n, jsast.FuncMethod)
	case "class_declaration", "abstract_class_declaration":
		return c.class(n, true)
	case "class":
		return c.class(n, false)

	case "catch_clause":
		cc := &jsast.CatchClause{Span: span(n), Param: c.field(n, "parameter")}
		if body := n.ChildByFieldName("body"); body != nil {
			cc.Body = c.block(body)
		}
		return cc
	case "for_in_statement":
		return c.forIn(n)

	case "assignment_expression", "augmented_assignment_expression":
		op := "="
		if o := n.ChildByFieldName("operator"); o != nil {
			op = o.Utf8Text(c.src)
		}
		return &jsast.AssignmentExpression{
			Span:     span(n),
			Operator: op,
			Left:     c.field(n, "left"),
			Right:    c.field(n, "right"),
		}
	case "call_expression":
		return c.call(n)
	case "member_expression":
		m := &jsast.MemberExpression{Span: span(n), Object: c.field(n, "object")}
		if p := n.ChildByFieldName("property"); p != nil {
			m.Property = c.ident(p)
		}
		return m
	case "subscript_expression":
		return &jsast.MemberExpression{
			Span:     span(n),
			Object:   c.field(n, "object"),
			Property: c.field(n, "index"),
			Computed: true,
		}

	case "identifier", "shorthand_property_identifier_pattern":
		return c.ident(n)
	case "undefined":
		return &jsast.Identifier{Span: span(n), Name: "undefined"}
	case "this":
		return &jsast.ThisExpression{Span: span(n)}
	case "string", "number", "true", "false", "null", "regex":
		return c.literal(n)

	case "object":
		return &jsast.ObjectExpression{Span: span(n), Properties: c.properties(n)}
	case "object_pattern":
		return &jsast.ObjectPattern{Span: span(n), Properties: c.properties(n)}
	case "array_pattern":
		return &jsast.ArrayPattern{Span: span(n), Elements: c.list(n)}
	case "spread_element":
		return &jsast.SpreadElement{Span: span(n), Argument: c.first(n)}
	case "rest_pattern":
		return &jsast.RestElement{Span: span(n), Argument: c.first(n)}
	case "assignment_pattern", "object_assignment_pattern":
		return &jsast.AssignmentPattern{
			Span:  span(n),
			Left:  c.field(n, "left"),
			Right: c.field(n, "right"),
		}
	case "required_parameter", "optional_parameter":
		pattern := c.field(n, "pattern")
		if def := c.field(n, "value"); def != nil {
			return &jsast.AssignmentPattern{Span: span(n), Left: pattern, Right: def}
		}
		return pattern

	case "parenthesized_expression", "non_null_expression", "as_expression",
		"satisfies_expression":
		return c.first(n)
	case "type_assertion":
		kids := namedChildren(n)
		if len(kids) == 0 {
			return nil
		}
		return c.node(kids[len(kids)-1])
	case "labeled_statement":
		return &jsast.Other{Span: span(n), Kind: kind, Children: []jsast.Node{c.field(n, "body")}}
	}

	return c.other(n)
}

// first converts the first named child of n.
func (c *converter) first(n *ts.Node) jsast.Node {
	for _, child := range namedChildren(n) {
		if conv := c.node(child); conv != nil {
			return conv
		}
	}
	return nil
}

func (c *converter) block(n *ts.Node) *jsast.BlockStatement {
	return &jsast.BlockStatement{Span: span(n), Body: c.list(n)}
}

func (c *converter) declaration(n *ts.Node) *jsast.VariableDeclaration {
	decl := &jsast.VariableDeclaration{Span: span(n), Kind: jsast.DeclVar}
	if k := n.ChildByFieldName("kind"); k != nil {
		decl.Kind = declKind(k.Utf8Text(c.src))
	}
	for _, child := range namedChildren(n) {
		if child.Kind() == "variable_declarator" {
			decl.Declarations = append(decl.Declarations, c.declarator(child))
		}
	}
	return decl
}

func declKind(keyword string) jsast.DeclKind {
	switch keyword {
	case "let":
		return jsast.DeclLet
	case "const", "using", "await using":
		return jsast.DeclConst
	default:
		return jsast.DeclVar
	}
}

func (c *converter) declarator(n *ts.Node) *jsast.VariableDeclarator {
	return &jsast.VariableDeclarator{
		Span:   span(n),
		Target: c.field(n, "name"),
		Init:   c.field(n, "value"),
	}
}

func (c *converter) function(n *ts.Node, kind jsast.FuncKind) *jsast.Function {
	fn := &jsast.Function{Span: span(n), Kind: kind}
	if name := n.ChildByFieldName("name"); name != nil && name.Kind() == "identifier" {
		fn.Name = c.ident(name)
	}
	if p := n.ChildByFieldName("parameter"); p != nil {
		fn.Params = []jsast.Node{c.node(p)}
	} else if ps := n.ChildByFieldName("parameters"); ps != nil {
		fn.Params = c.list(ps)
	}
	fn.Body = c.field(n, "body")
	return fn
}

func (c *converter) class(n *ts.Node, declaration bool) *jsast.Class {
	cl := &jsast.Class{Span: span(n), IsDeclaration: declaration}
	if name := n.ChildByFieldName("name"); name != nil {
		cl.Name = c.ident(name)
	}
	for _, child := range namedChildren(n) {
		if child.Kind() != "class_heritage" {
			continue
		}
		for _, h := range namedChildren(child) {
			switch h.Kind() {
			case "extends_clause":
				cl.SuperClass = c.field(h, "value")
			case "implements_clause":
			default:
				cl.SuperClass = c.node(h)
			}
		}
	}
	return cl
}

func (c *converter) forIn(n *ts.Node) *jsast.ForIn {
	loop := &jsast.ForIn{
		Span:  span(n),
		Right: c.field(n, "right"),
		Body:  c.field(n, "body"),
	}
	left := c.field(n, "left")
	if k := n.ChildByFieldName("kind"); k != nil {
		loop.Left = &jsast.VariableDeclaration{
			Span: span(k),
			Kind: declKind(k.Utf8Text(c.src)),
			Declarations: []*jsast.VariableDeclarator{
				{Span: span(k), Target: left},
			},
		}
	} else {
		loop.Left = left
	}
	return loop
}

func (c *converter) call(n *ts.Node) *jsast.CallExpression {
	call := &jsast.CallExpression{
		Span:     span(n),
		Callee:   c.field(n, "function"),
		Optional: n.ChildByFieldName("optional_chain") != nil,
	}
	if args := n.ChildByFieldName("arguments"); args != nil {
		if args.Kind() == "arguments" {
			call.Arguments = c.list(args)
		} else {
			// Tagged template.
			call.Arguments = []jsast.Node{c.node(args)}
		}
	}
	return call
}

// properties converts the members of an object literal or object pattern.
func (c *converter) properties(n *ts.Node) []jsast.Node {
	var out []jsast.Node
	for _, child := range namedChildren(n) {
		var prop jsast.Node
		switch child.Kind() {
		case "pair", "pair_pattern":
			p := &jsast.Property{Span: span(child), Value: c.field(child, "value")}
			p.Key, p.Computed = c.propertyKey(child.ChildByFieldName("key"))
			prop = p
		case "shorthand_property_identifier", "shorthand_property_identifier_pattern":
			prop = &jsast.Property{
				Span:      span(child),
				Key:       c.ident(child),
				Value:     c.ident(child),
				Shorthand: true,
			}
		case "object_assignment_pattern":
			left := child.ChildByFieldName("left")
			if left != nil && left.Kind() == "shorthand_property_identifier_pattern" {
				prop = &jsast.Property{
					Span:      span(child),
					Key:       c.ident(left),
					Value:     c.node(child),
					Shorthand: true,
				}
			} else {
				prop = c.node(child)
			}
		case "method_definition":
			p := &jsast.Property{Span: span(child), Kind: methodKind(child, c.src), Value: c.node(child)}
			p.Key, p.Computed = c.propertyKey(child.ChildByFieldName("name"))
			prop = p
		default:
			prop = c.node(child)
		}
		if prop != nil {
			out = append(out, prop)
		}
	}
	return out
}

func methodKind(n *ts.Node, src []byte) jsast.PropertyKind {
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c == nil || c.IsNamed() {
			continue
		}
		switch c.Utf8Text(src) {
		case "get":
			return jsast.PropertyGet
		case "set":
			return jsast.PropertySet
		}
	}
	return jsast.PropertyMethod
}

// propertyKey converts an object key and reports whether it is computed.
func (c *converter) propertyKey(n *ts.Node) (jsast.Node, bool) {
	if n == nil {
		return nil, false
	}
	switch n.Kind() {
	case "property_identifier", "private_property_identifier", "identifier":
		return c.ident(n), false
	case "computed_property_name":
		return c.first(n), true
	}
	return c.node(n), false
}

func (c *converter) literal(n *ts.Node) jsast.Node {
	raw := n.Utf8Text(c.src)
	lit := &jsast.Literal{Span: span(n), Raw: raw}
	switch n.Kind() {
	case "string":
		v, ok := jsast.UnquoteString(raw)
		if !ok {
			return c.other(n)
		}
		lit.Kind, lit.Value = jsast.LiteralString, v
	case "number":
		if v, ok := jsast.ParseNumber(raw); ok {
			lit.Kind, lit.Value = jsast.LiteralNumber, v
		} else {
			lit.Kind, lit.Value = jsast.LiteralBigInt, raw
		}
	case "true", "false":
		lit.Kind, lit.Value = jsast.LiteralBoolean, n.Kind() == "true"
	case "null":
		lit.Kind = jsast.LiteralNull
	case "regex":
		lit.Kind, lit.Value = jsast.LiteralRegExp, raw
	}
	return lit
}
