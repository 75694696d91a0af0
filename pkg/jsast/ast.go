// Package jsast defines the closed set of JavaScript syntax nodes the
// CommonJS export analyzer inspects.
//
// Every node category the analyzer cares about has its own type. Anything
// else is carried as *Other, which only records its kind and children so a
// traversal can recurse into it without special handling.
package jsast

import "fmt"

// Loc is a 1-based source position.
type Loc struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (l Loc) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Span records where a node starts. It is embedded in every node type.
type Span struct {
	Start Loc
}

// Pos returns the start position of the node.
func (s Span) Pos() Loc { return s.Start }

// Node is implemented by every syntax node type in this package.
type Node interface {
	Pos() Loc
	isNode()
}

// DeclKind is the keyword of a variable declaration.
type DeclKind uint8

const (
	DeclVar DeclKind = iota
	DeclLet
	DeclConst
)

func (k DeclKind) String() string {
	switch k {
	case DeclLet:
		return "let"
	case DeclConst:
		return "const"
	default:
		return "var"
	}
}

// FuncKind distinguishes the syntactic forms of a function.
type FuncKind uint8

const (
	FuncDeclaration FuncKind = iota
	FuncExpression
	FuncArrow
	FuncMethod
)

// PropertyKind distinguishes object literal members.
type PropertyKind uint8

const (
	PropertyInit PropertyKind = iota
	PropertyMethod
	PropertyGet
	PropertySet
)

// LiteralKind is the type of a literal value.
type LiteralKind uint8

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBigInt
	LiteralBoolean
	LiteralNull
	LiteralRegExp
)

type (
	Program struct {
		Span
		Body []Node
	}

	BlockStatement struct {
		Span
		Body []Node
	}

	ExpressionStatement struct {
		Span
		Expression Node
	}

	VariableDeclaration struct {
		Span
		Kind         DeclKind
		Declarations []*VariableDeclarator
	}

	// VariableDeclarator binds Target, a pattern, to the optional Init.
	VariableDeclarator struct {
		Span
		Target Node
		Init   Node
	}

	// Function covers declarations, expressions, arrows and methods. Body is
	// a *BlockStatement, or any expression for concise arrow bodies.
	Function struct {
		Span
		Kind   FuncKind
		Name   *Identifier
		Params []Node
		Body   Node
	}

	Class struct {
		Span
		IsDeclaration bool
		Name          *Identifier
		SuperClass    Node
	}

	CatchClause struct {
		Span
		Param Node
		Body  *BlockStatement
	}

	// ForIn covers for-in and for-of loops. Left is a *VariableDeclaration
	// when the loop declares its binding, otherwise an assignment target.
	ForIn struct {
		Span
		Left  Node
		Right Node
		Body  Node
	}

	AssignmentExpression struct {
		Span
		Operator string
		Left     Node
		Right    Node
	}

	CallExpression struct {
		Span
		Callee    Node
		Arguments []Node
		Optional  bool
	}

	// MemberExpression is a property access. Property is an *Identifier
	// unless Computed is set.
	MemberExpression struct {
		Span
		Object   Node
		Property Node
		Computed bool
	}

	Identifier struct {
		Span
		Name string
	}

	ThisExpression struct {
		Span
	}

	// Literal holds a decoded literal. Value is a string, float64, bool or
	// nil depending on Kind; bigint and regexp literals keep their source
	// text in Value.
	Literal struct {
		Span
		Kind  LiteralKind
		Value any
		Raw   string
	}

	ObjectExpression struct {
		Span
		Properties []Node
	}

	// Property is a member of an object literal or object pattern.
	Property struct {
		Span
		Kind      PropertyKind
		Key       Node
		Value     Node
		Computed  bool
		Shorthand bool
	}

	SpreadElement struct {
		Span
		Argument Node
	}

	ObjectPattern struct {
		Span
		Properties []Node
	}

	// ArrayPattern elements may be nil for holes.
	ArrayPattern struct {
		Span
		Elements []Node
	}

	RestElement struct {
		Span
		Argument Node
	}

	AssignmentPattern struct {
		Span
		Left  Node
		Right Node
	}

	// Other is any node the analyzer has no rule for.
	Other struct {
		Span
		Kind     string
		Children []Node
	}
)

func (*Program) isNode()              {}
func (*BlockStatement) isNode()       {}
func (*ExpressionStatement) isNode()  {}
func (*VariableDeclaration) isNode()  {}
func (*VariableDeclarator) isNode()   {}
func (*Function) isNode()             {}
func (*Class) isNode()                {}
func (*CatchClause) isNode()          {}
func (*ForIn) isNode()                {}
func (*AssignmentExpression) isNode() {}
func (*CallExpression) isNode()       {}
func (*MemberExpression) isNode()     {}
func (*Identifier) isNode()           {}
func (*ThisExpression) isNode()       {}
func (*Literal) isNode()              {}
func (*ObjectExpression) isNode()     {}
func (*Property) isNode()             {}
func (*SpreadElement) isNode()        {}
func (*ObjectPattern) isNode()        {}
func (*ArrayPattern) isNode()         {}
func (*RestElement) isNode()          {}
func (*AssignmentPattern) isNode()    {}
func (*Other) isNode()                {}

// Children returns the direct child nodes of n in source order. Nil
// children are omitted.
func Children(n Node) []Node {
	var out []Node
	add := func(ns ...Node) {
		for _, c := range ns {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	switch n := n.(type) {
	case *Program:
		add(n.Body...)
	case *BlockStatement:
		add(n.Body...)
	case *ExpressionStatement:
		add(n.Expression)
	case *VariableDeclaration:
		for _, d := range n.Declarations {
			add(d)
		}
	case *VariableDeclarator:
		add(n.Target, n.Init)
	case *Function:
		if n.Name != nil {
			add(n.Name)
		}
		add(n.Params...)
		add(n.Body)
	case *Class:
		if n.Name != nil {
			add(n.Name)
		}
		add(n.SuperClass)
	case *CatchClause:
		add(n.Param)
		if n.Body != nil {
			add(n.Body)
		}
	case *ForIn:
		add(n.Left, n.Right, n.Body)
	case *AssignmentExpression:
		add(n.Left, n.Right)
	case *CallExpression:
		add(n.Callee)
		add(n.Arguments...)
	case *MemberExpression:
		add(n.Object, n.Property)
	case *ObjectExpression:
		add(n.Properties...)
	case *Property:
		add(n.Key, n.Value)
	case *SpreadElement:
		add(n.Argument)
	case *ObjectPattern:
		add(n.Properties...)
	case *ArrayPattern:
		add(n.Elements...)
	case *RestElement:
		add(n.Argument)
	case *AssignmentPattern:
		add(n.Left, n.Right)
	case *Other:
		add(n.Children...)
	}
	return out
}
