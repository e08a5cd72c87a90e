package jsast

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	sources := []string{
		"var x = 1;",
		"function f(a, b) { return a + b; }",
		"const obj = { a: 1, b: 'two' }; obj.a++;",
		"for (let i = 0; i < 10; i++) console.log(i);",
		"class C { constructor() { this.x = 1; } m() { return this.x; } }",
	}
	for _, src := range sources {
		tree, err := Parse(src)
		require.NoError(t, err, src)
		assert.Empty(t, tree.Errors, src)

		out, err := tree.Generate()
		require.NoError(t, err)
		assert.Equal(t, src, out, "no edits means identity")

		// generate(parse(S)) parses, and re-parsing yields an
		// equivalent tree.
		assert.True(t, StructuralEqual(src, out))
		tree.Close()
	}
}

func TestParseRecoversFromErrors(t *testing.T) {
	tree, err := Parse("var x = 1; fun ction broken(; var y = 2;")
	require.NoError(t, err)
	defer tree.Close()
	assert.NotEmpty(t, tree.Errors)
	assert.Greater(t, tree.Errors[0].Line, 0)
}

func TestWalkDocumentOrder(t *testing.T) {
	tree, err := Parse("a(); b(); c();")
	require.NoError(t, err)
	defer tree.Close()

	var calls []string
	var exits int
	tree.WalkNamed(Visitor{
		Enter: map[string]func(*Path){
			"call_expression": func(p *Path) {
				calls = append(calls, CalleeName(p.Node()))
			},
		},
		Exit: map[string]func(*Path){
			"call_expression": func(p *Path) { exits++ },
		},
	})
	assert.Equal(t, []string{"a", "b", "c"}, calls)
	assert.Equal(t, 3, exits, "exit fires on backtrack for every enter")
}

func TestPathParentAndScope(t *testing.T) {
	tree, err := Parse("function outer() { function inner() { leak(); } }")
	require.NoError(t, err)
	defer tree.Close()

	var scopeOfLeak int
	var parentKind string
	tree.WalkNamed(Visitor{
		Enter: map[string]func(*Path){
			"call_expression": func(p *Path) {
				scopeOfLeak = p.ScopeID()
				parentKind = p.Parent().Kind()
			},
		},
	})
	assert.NotZero(t, scopeOfLeak, "call sits inside inner, not program scope")
	assert.Equal(t, "expression_statement", parentKind)
}

func TestReplaceAndGenerate(t *testing.T) {
	src := "var a = 1 + 2;"
	tree, err := Parse(src)
	require.NoError(t, err)
	defer tree.Close()

	tree.WalkNamed(Visitor{
		Enter: map[string]func(*Path){
			"binary_expression": func(p *Path) {
				tree.Replace(p.Node(), "3")
			},
		},
	})
	out, err := tree.Generate()
	require.NoError(t, err)
	assert.Equal(t, "var a = 3;", out)
}

func TestOverlappingEditsRejected(t *testing.T) {
	tree, err := Parse("foo(bar());")
	require.NoError(t, err)
	defer tree.Close()

	var outer, inner Node
	tree.WalkNamed(Visitor{
		Enter: map[string]func(*Path){
			"call_expression": func(p *Path) {
				if !outer.Valid() {
					outer = p.Node()
				} else {
					inner = p.Node()
				}
			},
		},
	})
	tree.Replace(outer, "x")
	tree.Replace(inner, "y")
	_, err = tree.Generate()
	assert.Error(t, err)
}

func TestInsertBeforeAfter(t *testing.T) {
	src := "b();"
	tree, err := Parse(src)
	require.NoError(t, err)
	defer tree.Close()

	stmt := tree.Root().NamedChild(0)
	tree.InsertBefore(stmt, "a();")
	tree.InsertAfter(stmt, "c();")
	out, err := tree.Generate()
	require.NoError(t, err)
	assert.Equal(t, "a();b();c();", out)
}

func TestStringValueDecodesEscapes(t *testing.T) {
	cases := map[string]string{
		`'\x68\x69'`:       "hi",
		`'AB'`:   "AB",
		`'\u{1F600}'`:      "\U0001F600",
		`'a\nb'`:           "a\nb",
		`"quote\"inside"`:  `quote"inside`,
		`'plain'`:          "plain",
	}
	for raw, want := range cases {
		got, ok := DecodeStringLiteral(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseJSNumber(t *testing.T) {
	cases := map[string]float64{
		"42":    42,
		"0x1f":  31,
		"0b101": 5,
		"0o17":  15,
		"1.5e2": 150,
	}
	for text, want := range cases {
		got, ok := ParseJSNumber(text)
		require.True(t, ok, text)
		assert.Equal(t, want, got, text)
	}
}

func TestMemberPath(t *testing.T) {
	tree, err := Parse("navigator.userAgent; window['location'].href; a[b].c;")
	require.NoError(t, err)
	defer tree.Close()

	var paths []string
	tree.WalkNamed(Visitor{
		Enter: map[string]func(*Path){
			"member_expression": func(p *Path) {
				if IsMemberExpr(p.Parent()) {
					return // only report outermost chains
				}
				if path, ok := MemberPath(p.Node()); ok {
					paths = append(paths, path)
				}
				p.SkipChildren()
			},
			"subscript_expression": func(p *Path) {
				if IsMemberExpr(p.Parent()) {
					return
				}
				if path, ok := MemberPath(p.Node()); ok {
					paths = append(paths, path)
				}
			},
		},
	})
	assert.Contains(t, paths, "navigator.userAgent")
	assert.Contains(t, paths, "window.location.href")
	for _, p := range paths {
		assert.False(t, strings.HasPrefix(p, "a."), "computed subscript must not flatten")
	}
}

func TestStructuralEqualIgnoresWhitespaceAndComments(t *testing.T) {
	a := "var x=1;// trailing\nfunction f(){return x;}"
	b := "var x = 1;\n\nfunction f() {\n  /* block */ return x;\n}"
	assert.True(t, StructuralEqual(a, b))
	assert.False(t, StructuralEqual("var x = 1;", "var x = 2;"))

	ta, err := Parse(a)
	require.NoError(t, err)
	defer ta.Close()
	tb, err := Parse(b)
	require.NoError(t, err)
	defer tb.Close()
	if diff := cmp.Diff(ta.Sexp(), tb.Sexp()); diff != "" {
		t.Errorf("sexp mismatch (-a +b):\n%s", diff)
	}
}
