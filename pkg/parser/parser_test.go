package parser

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/cjsexports/pkg/jsast"
)

func newTestManager(t *testing.T) *ParserManager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	manager := NewParserManager(logger)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want Language
		tsx  bool
	}{
		{"index.js", LanguageJavaScript, false},
		{"index.cjs", LanguageJavaScript, false},
		{"bin/cli", LanguageJavaScript, false},
		{"lib.ts", LanguageTypeScript, false},
		{"lib.cts", LanguageTypeScript, false},
		{"view.tsx", LanguageTypeScript, true},
		{"package.json", LanguageJSON, false},
		{"addon.node", LanguageNative, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path))
			assert.Equal(t, tt.tsx, IsTSXFile(tt.path))
		})
	}
	assert.False(t, LanguageJSON.HasGrammar())
	assert.True(t, LanguageTypeScript.HasGrammar())
}

func TestParseRawTree(t *testing.T) {
	manager := newTestManager(t)

	tree, err := manager.Parse([]byte("const x = 1;"), LanguageJavaScript, false)
	require.NoError(t, err)
	defer tree.Close()
	assert.Equal(t, "program", tree.RootNode().Kind())

	_, err = manager.Parse([]byte("{}"), LanguageJSON, false)
	assert.Error(t, err)
}

func TestParseProgramSyntaxError(t *testing.T) {
	manager := newTestManager(t)

	prog, err := manager.ParseProgram([]byte("exports.a = 1;\nexports.b = ;"), "broken.js")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))

	var serr *SyntaxError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 2, serr.Loc.Line)
	assert.NotNil(t, prog, "the partial program is still returned")
	assert.Equal(t, 1, manager.GetStats().SyntaxErrors)
}

func TestConvertDeclarations(t *testing.T) {
	manager := newTestManager(t)

	src := `var a = 1;
let {b, c: [d, ...e], f = 2} = obj;
const g = 'str';
`
	prog, err := manager.ParseProgram([]byte(src), "decl.js")
	require.NoError(t, err)
	require.Len(t, prog.Body, 3)

	varDecl := prog.Body[0].(*jsast.VariableDeclaration)
	assert.Equal(t, jsast.DeclVar, varDecl.Kind)
	assert.Equal(t, "a", varDecl.Declarations[0].Target.(*jsast.Identifier).Name)
	assert.Equal(t, float64(1), varDecl.Declarations[0].Init.(*jsast.Literal).Value)

	letDecl := prog.Body[1].(*jsast.VariableDeclaration)
	assert.Equal(t, jsast.DeclLet, letDecl.Kind)
	pattern := letDecl.Declarations[0].Target.(*jsast.ObjectPattern)
	require.Len(t, pattern.Properties, 3)

	b := pattern.Properties[0].(*jsast.Property)
	assert.True(t, b.Shorthand)
	assert.Equal(t, "b", b.Value.(*jsast.Identifier).Name)

	c := pattern.Properties[1].(*jsast.Property)
	arr := c.Value.(*jsast.ArrayPattern)
	require.Len(t, arr.Elements, 2)
	assert.IsType(t, &jsast.RestElement{}, arr.Elements[1])

	f := pattern.Properties[2].(*jsast.Property)
	def := f.Value.(*jsast.AssignmentPattern)
	assert.Equal(t, "f", def.Left.(*jsast.Identifier).Name)

	constDecl := prog.Body[2].(*jsast.VariableDeclaration)
	assert.Equal(t, jsast.DeclConst, constDecl.Kind)
	assert.Equal(t, "str", constDecl.Declarations[0].Init.(*jsast.Literal).Value)
	assert.Equal(t, jsast.Loc{Line: 3, Column: 1}, constDecl.Pos())
}

func TestConvertExpressions(t *testing.T) {
	manager := newTestManager(t)

	src := `module.exports['x'] = (function () { this.y = 1; })();
Object.defineProperty(exports, "z", { value: true });
`
	prog, err := manager.ParseProgram([]byte(src), "expr.js")
	require.NoError(t, err)
	require.Len(t, prog.Body, 2)

	assign := prog.Body[0].(*jsast.ExpressionStatement).Expression.(*jsast.AssignmentExpression)
	assert.Equal(t, "=", assign.Operator)
	left := assign.Left.(*jsast.MemberExpression)
	assert.True(t, left.Computed)
	assert.Equal(t, "x", left.Property.(*jsast.Literal).Value)

	call := assign.Right.(*jsast.CallExpression)
	fn := call.Callee.(*jsast.Function)
	assert.Equal(t, jsast.FuncExpression, fn.Kind, "parentheses are unwrapped")

	define := prog.Body[1].(*jsast.ExpressionStatement).Expression.(*jsast.CallExpression)
	require.Len(t, define.Arguments, 3)
	desc := define.Arguments[2].(*jsast.ObjectExpression)
	prop := desc.Properties[0].(*jsast.Property)
	assert.Equal(t, "value", prop.Key.(*jsast.Identifier).Name)
	assert.Equal(t, true, prop.Value.(*jsast.Literal).Value)
}

func TestConvertTypeScript(t *testing.T) {
	manager := newTestManager(t)

	src := `interface Options { a: string }
exports.a = (value as any)!;
(function (exports: any, b = 1) {})(x);
`
	prog, err := manager.ParseProgram([]byte(src), "lib.ts")
	require.NoError(t, err)
	require.Len(t, prog.Body, 2, "interfaces are type-only and dropped")

	assign := prog.Body[0].(*jsast.ExpressionStatement).Expression.(*jsast.AssignmentExpression)
	assert.Equal(t, "value", assign.Right.(*jsast.Identifier).Name)

	call := prog.Body[1].(*jsast.ExpressionStatement).Expression.(*jsast.CallExpression)
	fn := call.Callee.(*jsast.Function)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, "exports", fn.Params[0].(*jsast.Identifier).Name)
	assert.IsType(t, &jsast.AssignmentPattern{}, fn.Params[1])
}

func TestConvertClassAndCatch(t *testing.T) {
	manager := newTestManager(t)

	src := `class A extends B { m() { exports.no = 1; } }
try {} catch ({ exports }) {}
`
	prog, err := manager.ParseProgram([]byte(src), "class.js")
	require.NoError(t, err)

	class := prog.Body[0].(*jsast.Class)
	assert.True(t, class.IsDeclaration)
	assert.Equal(t, "A", class.Name.Name)
	assert.Equal(t, "B", class.SuperClass.(*jsast.Identifier).Name)

	try := prog.Body[1].(*jsast.Other)
	var catch *jsast.CatchClause
	for _, c := range try.Children {
		if cc, ok := c.(*jsast.CatchClause); ok {
			catch = cc
		}
	}
	require.NotNil(t, catch)
	assert.IsType(t, &jsast.ObjectPattern{}, catch.Param)
}
