package deobfuscate

import (
	"strings"

	"jsrecon/internal/jsast"
	"jsrecon/internal/logging"
)

// maxFoldIterations bounds the fold/eliminate loop; each iteration
// re-parses, so folding converges when an iteration makes no edit.
const maxFoldIterations = 10

// basicTransform folds constants, removes opaque predicates and
// eliminates dead code. It iterates to a fixed point because one fold
// often enables the next (1+2 -> 3 enables if(3) -> consequent).
func (r *run) basicTransform() {
	total := 0
	for i := 0; i < maxFoldIterations; i++ {
		changed, ok := r.basicTransformOnce()
		if !ok {
			r.record("basic-ast-transform", "constant folding and dead-code elimination", false, total)
			return
		}
		if changed == 0 {
			break
		}
		total += changed
	}
	r.record("basic-ast-transform", "constant folding and dead-code elimination", true, total)
}

func (r *run) basicTransformOnce() (int, bool) {
	tree, err := jsast.Parse(r.source)
	if err != nil {
		logging.DeobWarn("basic transform: parse failed: %v", err)
		return 0, false
	}
	defer tree.Close()

	count := 0
	type span struct{ start, end int }
	var claimed []span

	// One edit per region per round keeps edits disjoint; enclosing
	// nodes fold on the next iteration.
	claim := func(n jsast.Node) bool {
		s, e := n.StartByte(), n.EndByte()
		for _, c := range claimed {
			if s < c.end && c.start < e {
				return false
			}
		}
		claimed = append(claimed, span{s, e})
		return true
	}

	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"binary_expression": func(p *jsast.Path) {
				n := p.Node()
				if folded, ok := foldBinary(n); ok && claim(n) {
					tree.Replace(n, folded)
					count++
				}
			},
			"unary_expression": func(p *jsast.Path) {
				n := p.Node()
				if folded, ok := foldOpaqueUnary(n); ok && claim(n) {
					tree.Replace(n, folded)
					count++
				}
			},
			"if_statement": func(p *jsast.Path) {
				n := p.Node()
				cond := unwrapParens(n.Field("condition"))
				truth, known := literalTruth(cond)
				if !known || !claim(n) {
					return
				}
				if truth {
					tree.Replace(n, branchSource(n.Field("consequence")))
				} else {
					alt := n.Field("alternative")
					if alt.Valid() {
						// alternative is the else_clause; its named child
						// is the statement to keep.
						body := alt.NamedChild(0)
						tree.Replace(n, branchSource(body))
					} else {
						tree.Remove(n)
					}
				}
				count++
				p.SkipChildren()
			},
			"statement_block": func(p *jsast.Path) {
				count += removeUnreachable(tree, p.Node(), claim)
			},
			"program": func(p *jsast.Path) {
				count += removeUnreachable(tree, p.Node(), claim)
			},
		},
	})

	if count == 0 {
		return 0, true
	}
	out, err := tree.Generate()
	if err != nil {
		logging.DeobWarn("basic transform: generate failed: %v", err)
		return 0, false
	}
	r.source = out
	return count, true
}

// foldBinary evaluates literal-only binary expressions: numeric
// arithmetic and comparisons, string concatenation, and the boolean
// short-circuits with a literal left side.
func foldBinary(n jsast.Node) (string, bool) {
	left := unwrapParens(n.Field("left"))
	right := unwrapParens(n.Field("right"))
	op := n.Field("operator")
	if !left.Valid() || !right.Valid() || !op.Valid() {
		return "", false
	}
	operator := op.Text()

	// true && x -> x, false || x -> x, false && x -> false, true || x -> true
	if lt, known := literalTruth(left); known && (operator == "&&" || operator == "||") {
		if operator == "&&" {
			if lt {
				return right.Text(), true
			}
			return left.Text(), true
		}
		if lt {
			return left.Text(), true
		}
		return right.Text(), true
	}

	if jsast.IsString(left) && jsast.IsString(right) && operator == "+" {
		lv, okL := jsast.StringValue(left)
		rv, okR := jsast.StringValue(right)
		if !okL || !okR {
			return "", false
		}
		return jsast.QuoteString(lv + rv), true
	}

	lv, okL := jsast.NumberValue(left)
	rv, okR := jsast.NumberValue(right)
	if !okL || !okR {
		return "", false
	}
	switch operator {
	case "+":
		return jsast.FormatNumber(lv + rv), true
	case "-":
		return jsast.FormatNumber(lv - rv), true
	case "*":
		return jsast.FormatNumber(lv * rv), true
	case "/":
		if rv == 0 {
			return "", false
		}
		return jsast.FormatNumber(lv / rv), true
	case "%":
		if rv == 0 {
			return "", false
		}
		return jsast.FormatNumber(float64(int64(lv) % int64(rv))), true
	case "===", "==":
		return boolLit(lv == rv), true
	case "!==", "!=":
		return boolLit(lv != rv), true
	case "<":
		return boolLit(lv < rv), true
	case "<=":
		return boolLit(lv <= rv), true
	case ">":
		return boolLit(lv > rv), true
	case ">=":
		return boolLit(lv >= rv), true
	}
	return "", false
}

// foldOpaqueUnary rewrites the array-coercion predicates the
// obfuscator plants: !![] -> true, ![] -> false, !0 -> true, !1 -> false.
func foldOpaqueUnary(n jsast.Node) (string, bool) {
	switch strings.ReplaceAll(n.Text(), " ", "") {
	case "!![]":
		return "true", true
	case "![]":
		return "false", true
	case "!0":
		return "true", true
	case "!1":
		return "false", true
	}
	return "", false
}

// literalTruth evaluates a literal node's truthiness.
func literalTruth(n jsast.Node) (truth, known bool) {
	if !n.Valid() {
		return false, false
	}
	switch n.Kind() {
	case "true":
		return true, true
	case "false":
		return false, true
	case "number":
		v, ok := jsast.NumberValue(n)
		return v != 0, ok
	case "string":
		v, ok := jsast.StringValue(n)
		return v != "", ok
	case "null", "undefined":
		return false, true
	}
	return false, false
}

func unwrapParens(n jsast.Node) jsast.Node {
	for n.Valid() && n.Kind() == "parenthesized_expression" {
		n = n.NamedChild(0)
	}
	return n
}

// branchSource returns the statement text to substitute for a folded
// if: block bodies lose their braces so the statements splice into the
// surrounding block.
func branchSource(n jsast.Node) string {
	if !n.Valid() {
		return ""
	}
	if n.Kind() == "statement_block" {
		text := n.Text()
		return strings.TrimSpace(text[1 : len(text)-1])
	}
	return n.Text()
}

// removeUnreachable drops statements after a return/throw/break/
// continue in a block. Function declarations hoist and survive.
func removeUnreachable(tree *jsast.Tree, block jsast.Node, claim func(jsast.Node) bool) int {
	count := 0
	terminated := false
	for i := 0; i < block.NamedChildCount(); i++ {
		stmt := block.NamedChild(i)
		if terminated {
			if stmt.Kind() == "function_declaration" || stmt.Kind() == "comment" {
				continue
			}
			if claim(stmt) {
				tree.Remove(stmt)
				count++
			}
			continue
		}
		switch stmt.Kind() {
		case "return_statement", "throw_statement", "break_statement", "continue_statement":
			terminated = true
		}
	}
	return count
}

func boolLit(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
