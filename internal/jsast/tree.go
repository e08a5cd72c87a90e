// Package jsast is the syntax-tree facade over the tree-sitter
// JavaScript grammar. Every analysis component consumes this package:
// parse, traverse, span-edit and regenerate source. Mutations are
// recorded as byte-span edits against the original source and applied
// by Generate, so regeneration is equivalent to the input modulo the
// edited spans.
package jsast

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"jsrecon/internal/rerr"
)

// SyntaxError is one unparseable or missing region found during parse.
type SyntaxError struct {
	Offset int
	Line   int
	Msg    string
}

// Tree is a parsed JavaScript program plus its pending edits.
type Tree struct {
	src    []byte
	ts     *sitter.Tree
	Errors []SyntaxError
	edits  []edit
}

// Node wraps a tree-sitter node together with its owning tree.
type Node struct {
	n    *sitter.Node
	tree *Tree
}

// Parse parses source, recovering where possible. The returned tree is
// best-effort: syntax errors are collected into Tree.Errors rather than
// failing the parse. Only a completely unusable input yields an error.
func Parse(source string) (*Tree, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(javascript.GetLanguage())

	src := []byte(source)
	ts, err := p.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindParse, "tree-sitter parse failed", err)
	}
	root := ts.RootNode()
	if root == nil {
		ts.Close()
		return nil, rerr.New(rerr.KindParse, "no parse tree produced")
	}

	t := &Tree{src: src, ts: ts}
	t.collectErrors(root)

	// A root that is nothing but one error region is not a usable tree.
	if root.Type() == "ERROR" {
		pos := root.StartPoint()
		return nil, &rerr.ParseError{
			Offset: int(root.StartByte()),
			Line:   int(pos.Row) + 1,
			Msg:    "input is not JavaScript",
		}
	}
	return t, nil
}

func (t *Tree) collectErrors(n *sitter.Node) {
	if n.Type() == "ERROR" || n.IsMissing() {
		pos := n.StartPoint()
		msg := "unexpected token"
		if n.IsMissing() {
			msg = "missing " + n.Type()
		}
		t.Errors = append(t.Errors, SyntaxError{
			Offset: int(n.StartByte()),
			Line:   int(pos.Row) + 1,
			Msg:    msg,
		})
		return
	}
	if !n.HasError() {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		t.collectErrors(n.Child(i))
	}
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t.ts != nil {
		t.ts.Close()
		t.ts = nil
	}
}

// Source returns the original source text.
func (t *Tree) Source() string { return string(t.src) }

// Root returns the program node.
func (t *Tree) Root() Node { return Node{n: t.ts.RootNode(), tree: t} }

// Valid reports whether the node wraps a real tree-sitter node.
func (n Node) Valid() bool { return n.n != nil }

// Kind returns the grammar node type ("call_expression", "string", ...).
func (n Node) Kind() string { return n.n.Type() }

// Text returns the source slice covered by the node.
func (n Node) Text() string { return n.n.Content(n.tree.src) }

// StartByte returns the node's start offset.
func (n Node) StartByte() int { return int(n.n.StartByte()) }

// EndByte returns the node's end offset.
func (n Node) EndByte() int { return int(n.n.EndByte()) }

// StartLine returns the 1-based line of the node's first byte.
func (n Node) StartLine() int { return int(n.n.StartPoint().Row) + 1 }

// Parent returns the parent node, invalid at the root.
func (n Node) Parent() Node { return Node{n: n.n.Parent(), tree: n.tree} }

// ChildCount returns the number of children including anonymous tokens.
func (n Node) ChildCount() int { return int(n.n.ChildCount()) }

// Child returns the i-th child including anonymous tokens.
func (n Node) Child(i int) Node { return Node{n: n.n.Child(i), tree: n.tree} }

// NamedChildCount returns the number of named children.
func (n Node) NamedChildCount() int { return int(n.n.NamedChildCount()) }

// NamedChild returns the i-th named child.
func (n Node) NamedChild(i int) Node { return Node{n: n.n.NamedChild(i), tree: n.tree} }

// Field returns the child for a grammar field name ("left", "function"...).
func (n Node) Field(name string) Node {
	return Node{n: n.n.ChildByFieldName(name), tree: n.tree}
}

// Clone returns the node's source text. Spans are not preserved; the
// result is raw program text suitable for re-insertion.
func (n Node) Clone() string { return n.Text() }

// Same reports whether two handles refer to the same underlying node.
func (n Node) Same(other Node) bool {
	return n.n != nil && other.n != nil && n.n.Equal(other.n)
}

// functionKinds are the scope-introducing node types.
var functionKinds = map[string]bool{
	"function_declaration":           true,
	"function":                       true,
	"function_expression":            true,
	"generator_function":             true,
	"generator_function_declaration": true,
	"arrow_function":                 true,
	"method_definition":              true,
}

// IsFunctionLike reports whether the node introduces a new scope.
func (n Node) IsFunctionLike() bool { return functionKinds[n.Kind()] }

// ScopeID returns a stable identifier for the nearest enclosing
// function scope: the scope node's start byte, or 0 for program scope.
// Identifier-keyed maps must key by (ScopeID, name), not name alone.
func (n Node) ScopeID() int {
	for p := n.n.Parent(); p != nil; p = p.Parent() {
		if functionKinds[p.Type()] {
			return int(p.StartByte())
		}
	}
	return 0
}

// Lines reports how many lines the source spans; used for summaries.
func (t *Tree) Lines() int {
	return strings.Count(string(t.src), "\n") + 1
}
