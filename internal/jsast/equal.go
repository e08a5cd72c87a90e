package jsast

import "strings"

// Sexp renders the tree as an s-expression over named nodes, skipping
// comments. Leaf tokens carry their normalized text so identifier and
// literal differences are visible. Used for structural comparison.
func (t *Tree) Sexp() string {
	var b strings.Builder
	writeSexp(&b, t.Root())
	return b.String()
}

func writeSexp(b *strings.Builder, n Node) {
	if !n.Valid() || n.Kind() == "comment" {
		return
	}
	if n.NamedChildCount() == 0 {
		b.WriteByte('(')
		b.WriteString(n.Kind())
		b.WriteByte(' ')
		b.WriteString(normalizeToken(n))
		b.WriteByte(')')
		return
	}
	b.WriteByte('(')
	b.WriteString(n.Kind())
	for i := 0; i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() == "comment" {
			continue
		}
		b.WriteByte(' ')
		writeSexp(b, c)
	}
	b.WriteByte(')')
}

func normalizeToken(n Node) string {
	switch n.Kind() {
	case "string":
		if v, ok := StringValue(n); ok {
			return v
		}
	case "number":
		if v, ok := NumberValue(n); ok {
			return FormatNumber(v)
		}
	}
	return n.Text()
}

// StructuralEqual reports whether two sources parse to equivalent trees
// modulo whitespace and comments.
func StructuralEqual(a, b string) bool {
	ta, errA := Parse(a)
	if errA != nil {
		return false
	}
	defer ta.Close()
	tb, errB := Parse(b)
	if errB != nil {
		return false
	}
	defer tb.Close()
	return ta.Sexp() == tb.Sexp()
}
