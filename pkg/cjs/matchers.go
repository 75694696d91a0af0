package cjs

import "github.com/gnana997/cjsexports/pkg/jsast"

// identifiesName reports whether n is the identifier name, or a this
// expression when name is "this".
func identifiesName(n jsast.Node, name string) bool {
	switch n := n.(type) {
	case *jsast.Identifier:
		return n.Name == name
	case *jsast.ThisExpression:
		return name == "this"
	}
	return false
}

// isStaticMember reports whether n is the non-computed member chain
// names[0].names[1]...names[len-1].
func isStaticMember(n jsast.Node, names ...string) bool {
	for i := len(names) - 1; i > 0; i-- {
		m, ok := n.(*jsast.MemberExpression)
		if !ok || m.Computed || !identifiesName(m.Property, names[i]) {
			return false
		}
		n = m.Object
	}
	return identifiesName(n, names[0])
}

// exportTarget names the free variable an export object reference depends
// on: "exports" for exports, "module" for module.exports, "" otherwise.
func exportTarget(n jsast.Node) string {
	switch {
	case identifiesName(n, "exports"):
		return "exports"
	case isStaticMember(n, "module", "exports"):
		return "module"
	}
	return ""
}

// definePropertyBase returns "Object" or "Reflect" when callee is
// Object.defineProperty or Reflect.defineProperty.
func definePropertyBase(callee jsast.Node) string {
	switch {
	case isStaticMember(callee, "Object", "defineProperty"):
		return "Object"
	case isStaticMember(callee, "Reflect", "defineProperty"):
		return "Reflect"
	}
	return ""
}

func isDefineProperties(callee jsast.Node) bool {
	return isStaticMember(callee, "Object", "defineProperties")
}

// isIIFE reports whether call invokes a function or arrow literal in place.
func isIIFE(call *jsast.CallExpression) bool {
	fn, ok := call.Callee.(*jsast.Function)
	return ok && (fn.Kind == jsast.FuncExpression || fn.Kind == jsast.FuncArrow)
}

// requireSpecifier returns the specifier of require('<string>').
func requireSpecifier(n jsast.Node) (string, bool) {
	call, ok := n.(*jsast.CallExpression)
	if !ok || !identifiesName(call.Callee, "require") || len(call.Arguments) != 1 {
		return "", false
	}
	lit, ok := call.Arguments[0].(*jsast.Literal)
	if !ok || lit.Kind != jsast.LiteralString {
		return "", false
	}
	return lit.Value.(string), true
}

// literalName converts a literal used as a property key to the property
// name it denotes, rejecting names that are not valid identifiers.
func literalName(n jsast.Node) (string, bool) {
	lit, ok := n.(*jsast.Literal)
	if !ok {
		return "", false
	}
	name := jsast.FormatValue(lit.Value)
	if lit.Kind == jsast.LiteralRegExp || lit.Kind == jsast.LiteralBigInt {
		name = lit.Raw
	}
	if !jsast.IsIdentifier(name) {
		return "", false
	}
	return name, true
}

// keyName returns the static name of a non-computed property key.
func keyName(p *jsast.Property) (string, bool) {
	if p.Computed {
		return "", false
	}
	if id, ok := p.Key.(*jsast.Identifier); ok {
		return id.Name, true
	}
	return literalName(p.Key)
}
