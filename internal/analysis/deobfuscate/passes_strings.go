package deobfuscate

import (
	"regexp"
	"strings"

	"jsrecon/internal/jsast"
	"jsrecon/internal/logging"
)

// extractStringArrays records top-level array-valued declarators whose
// identifier matches the mangling pattern. Extraction must precede
// decryption; the recorded tables drive decryptArrays.
func (r *run) extractStringArrays() {
	tree, err := jsast.Parse(r.source)
	if err != nil {
		logging.DeobWarn("extract string arrays: parse failed: %v", err)
		r.record("extract-string-arrays", "locate mangled string tables", false, 0)
		return
	}
	defer tree.Close()

	found := 0
	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"variable_declarator": func(p *jsast.Path) {
				n := p.Node()
				name := n.Field("name")
				value := n.Field("value")
				if !name.Valid() || !value.Valid() || value.Kind() != "array" {
					return
				}
				if !r.d.manglePattern.MatchString(name.Text()) {
					return
				}
				if p.ScopeID() != 0 {
					return // only top-level tables
				}

				values := make([]string, 0, value.NamedChildCount())
				for i := 0; i < value.NamedChildCount(); i++ {
					el := value.NamedChild(i)
					if !jsast.IsString(el) {
						return // mixed arrays are not string tables
					}
					v, ok := jsast.StringValue(el)
					if !ok {
						return
					}
					values = append(values, v)
				}
				if len(values) == 0 {
					return
				}
				r.arrays[name.Text()] = values
				found++
			},
		},
	})

	r.record("extract-string-arrays", "locate mangled string tables", true, found)
}

// decodeStrings rewrites escape-heavy literals to plain text and folds
// all-numeric String.fromCharCode calls.
func (r *run) decodeStrings() {
	tree, err := jsast.Parse(r.source)
	if err != nil {
		logging.DeobWarn("decode strings: parse failed: %v", err)
		r.record("decode-strings", "resolve \\x/\\u escapes and fromCharCode", false, 0)
		return
	}
	defer tree.Close()

	count := 0
	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"string": func(p *jsast.Path) {
				n := p.Node()
				raw := n.Text()
				if !strings.Contains(raw, `\x`) && !strings.Contains(raw, `\u`) {
					return
				}
				decoded, ok := jsast.DecodeStringLiteral(raw)
				if !ok || !printable(decoded) {
					return
				}
				tree.Replace(n, jsast.QuoteString(decoded))
				count++
			},
			"call_expression": func(p *jsast.Path) {
				n := p.Node()
				if jsast.CalleeName(n) != "String.fromCharCode" {
					return
				}
				args := jsast.CallArguments(n)
				if len(args) == 0 {
					return
				}
				var b strings.Builder
				for _, a := range args {
					v, ok := jsast.NumberValue(a)
					if !ok {
						return // only fold when every argument is numeric
					}
					b.WriteRune(rune(int64(v)))
				}
				tree.Replace(n, jsast.QuoteString(b.String()))
				count++
				p.SkipChildren()
			},
		},
	})

	if count == 0 {
		r.record("decode-strings", "resolve \\x/\\u escapes and fromCharCode", true, 0)
		return
	}
	out, err := tree.Generate()
	if err != nil {
		r.record("decode-strings", "resolve \\x/\\u escapes and fromCharCode", false, 0)
		return
	}
	r.source = out
	r.record("decode-strings", "resolve \\x/\\u escapes and fromCharCode", true, count)
}

// decryptArrays replaces indexed accesses into extracted string tables
// with the actual literals, and removes rotation IIFEs operating on
// those tables.
func (r *run) decryptArrays() {
	if len(r.arrays) == 0 {
		r.record("decrypt-arrays", "inline string-table accesses", true, 0)
		return
	}

	rotations := r.removeRotationIIFEs()

	tree, err := jsast.Parse(r.source)
	if err != nil {
		logging.DeobWarn("decrypt arrays: parse failed: %v", err)
		r.record("decrypt-arrays", "inline string-table accesses", false, 0)
		return
	}
	defer tree.Close()

	count := 0
	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"subscript_expression": func(p *jsast.Path) {
				n := p.Node()
				obj := n.Field("object")
				idx := n.Field("index")
				if !jsast.IsIdentifier(obj) || !jsast.IsNumber(idx) {
					return
				}
				values, ok := r.arrays[obj.Text()]
				if !ok {
					return
				}
				// The declarator's own initializer keeps its literal form.
				if parentIsDeclaratorOf(p, obj.Text()) {
					return
				}
				i, okN := jsast.NumberValue(idx)
				if !okN || int(i) < 0 || int(i) >= len(values) {
					return
				}
				tree.Replace(n, jsast.QuoteString(values[int(i)]))
				count++
				p.SkipChildren()
			},
		},
	})

	out, err := tree.Generate()
	if err != nil {
		r.record("decrypt-arrays", "inline string-table accesses", false, 0)
		return
	}
	r.source = out
	r.record("decrypt-arrays", "inline string-table accesses", true, count)
	if rotations > 0 {
		r.record("remove-array-rotation", "drop push/shift rotation wrappers", true, rotations)
	}
}

// rotationShape matches the while-try push/shift body of a rotation
// IIFE; the statement must also reference a known table to qualify.
var rotationShape = regexp.MustCompile(`while\s*\([\s\S]*?\)\s*\{[\s\S]*?try[\s\S]*?push\s*\([\s\S]*?shift\s*\(`)

func (r *run) removeRotationIIFEs() int {
	tree, err := jsast.Parse(r.source)
	if err != nil {
		return 0
	}
	defer tree.Close()

	removed := 0
	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"expression_statement": func(p *jsast.Path) {
				n := p.Node()
				expr := n.NamedChild(0)
				if !expr.Valid() || expr.Kind() != "call_expression" {
					return
				}
				callee := unwrapParens(jsast.Callee(expr))
				if !callee.Valid() || !callee.IsFunctionLike() {
					return
				}
				text := n.Text()
				if !rotationShape.MatchString(text) {
					return
				}
				references := false
				for name := range r.arrays {
					if strings.Contains(text, name) {
						references = true
						break
					}
				}
				if !references {
					return
				}
				tree.Remove(n)
				removed++
				p.SkipChildren()
			},
		},
	})

	if removed == 0 {
		return 0
	}
	out, err := tree.Generate()
	if err != nil {
		return 0
	}
	r.source = out
	return removed
}

func parentIsDeclaratorOf(p *jsast.Path, name string) bool {
	parent := p.Parent()
	if !parent.Valid() || parent.Kind() != "variable_declarator" {
		return false
	}
	nameNode := parent.Field("name")
	return nameNode.Valid() && nameNode.Text() == name
}

func printable(s string) bool {
	for _, r := range s {
		if r < 0x09 {
			return false
		}
	}
	return true
}
