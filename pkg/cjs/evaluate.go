package cjs

import "github.com/gnana997/cjsexports/pkg/jsast"

// Value is what is statically known about one export assignment.
type Value struct {
	// Computed is set when the value cannot be read off a literal.
	Computed bool `json:"computed"`
	// Value holds the literal value when Computed is false: a string,
	// float64, bool, nil, or the source text of a regexp or bigint.
	Value any `json:"value,omitempty"`
	// Loc is where the assignment happened.
	Loc jsast.Loc `json:"loc"`
}

// String renders the value for display.
func (v Value) String() string {
	if v.Computed {
		return "<computed>"
	}
	if s, ok := v.Value.(string); ok {
		return `"` + s + `"`
	}
	return jsast.FormatValue(v.Value)
}

// evaluate reads the static value of n. With asDescriptor set, n must be a
// property descriptor object literal whose non-computed value key holds a
// literal.
func evaluate(n jsast.Node, asDescriptor bool) Value {
	if asDescriptor {
		obj, ok := n.(*jsast.ObjectExpression)
		if !ok {
			return Value{Computed: true}
		}
		for _, p := range obj.Properties {
			prop, ok := p.(*jsast.Property)
			if !ok {
				continue
			}
			if name, ok := keyName(prop); ok && name == "value" {
				return evaluate(prop.Value, false)
			}
		}
		return Value{Computed: true}
	}

	lit, ok := n.(*jsast.Literal)
	if !ok {
		return Value{Computed: true}
	}
	switch lit.Kind {
	case jsast.LiteralRegExp, jsast.LiteralBigInt:
		return Value{Value: lit.Raw}
	}
	return Value{Value: lit.Value}
}
