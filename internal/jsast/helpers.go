package jsast

import (
	"strconv"
	"strings"
)

// IsString reports whether the node is a string literal.
func IsString(n Node) bool { return n.Valid() && n.Kind() == "string" }

// IsNumber reports whether the node is a numeric literal.
func IsNumber(n Node) bool { return n.Valid() && n.Kind() == "number" }

// IsBool reports whether the node is a boolean literal.
func IsBool(n Node) bool {
	return n.Valid() && (n.Kind() == "true" || n.Kind() == "false")
}

// IsIdentifier reports whether the node is an identifier.
func IsIdentifier(n Node) bool { return n.Valid() && n.Kind() == "identifier" }

// IsCall reports whether the node is a call expression.
func IsCall(n Node) bool { return n.Valid() && n.Kind() == "call_expression" }

// IsMemberExpr reports whether the node is a member or subscript
// expression.
func IsMemberExpr(n Node) bool {
	return n.Valid() && (n.Kind() == "member_expression" || n.Kind() == "subscript_expression")
}

// Callee returns the function part of a call expression.
func Callee(n Node) Node { return n.Field("function") }

// CalleeName returns the callee as written: an identifier name or a
// dotted member path. Empty when the callee is a computed expression.
func CalleeName(n Node) string {
	callee := Callee(n)
	if !callee.Valid() {
		return ""
	}
	if callee.Kind() == "identifier" {
		return callee.Text()
	}
	if path, ok := MemberPath(callee); ok {
		return path
	}
	return ""
}

// CallArguments returns the named argument nodes of a call expression.
func CallArguments(n Node) []Node {
	args := n.Field("arguments")
	if !args.Valid() {
		return nil
	}
	out := make([]Node, 0, args.NamedChildCount())
	for i := 0; i < args.NamedChildCount(); i++ {
		out = append(out, args.NamedChild(i))
	}
	return out
}

// MemberPath flattens a member-expression chain into a dotted path
// ("navigator.userAgent"). String-keyed subscripts fold into the path;
// computed subscripts do not.
func MemberPath(n Node) (string, bool) {
	if !n.Valid() {
		return "", false
	}
	switch n.Kind() {
	case "identifier", "this":
		return n.Text(), true
	case "member_expression":
		obj, okObj := MemberPath(n.Field("object"))
		if !okObj {
			return "", false
		}
		prop := n.Field("property")
		if !prop.Valid() {
			return "", false
		}
		return obj + "." + prop.Text(), true
	case "subscript_expression":
		obj, okObj := MemberPath(n.Field("object"))
		if !okObj {
			return "", false
		}
		idx := n.Field("index")
		if IsString(idx) {
			if v, ok := StringValue(idx); ok {
				return obj + "." + v, true
			}
		}
		return "", false
	}
	return "", false
}

// StringValue decodes a string-literal node to its runtime value,
// resolving \xHH, \uHHHH, \u{...} and the single-character escapes.
func StringValue(n Node) (string, bool) {
	if !IsString(n) {
		return "", false
	}
	raw := n.Text()
	if len(raw) < 2 {
		return "", false
	}
	return DecodeStringLiteral(raw)
}

// DecodeStringLiteral decodes a quoted JS string literal (including the
// quotes) to its runtime value.
func DecodeStringLiteral(raw string) (string, bool) {
	if len(raw) < 2 {
		return "", false
	}
	quote := raw[0]
	if quote != '\'' && quote != '"' && quote != '`' {
		return "", false
	}
	body := raw[1 : len(raw)-1]

	var b strings.Builder
	for i := 0; i < len(body); {
		c := body[i]
		if c != '\\' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(body) {
			return "", false
		}
		esc := body[i+1]
		switch esc {
		case 'n':
			b.WriteByte('\n')
			i += 2
		case 't':
			b.WriteByte('\t')
			i += 2
		case 'r':
			b.WriteByte('\r')
			i += 2
		case 'b':
			b.WriteByte('\b')
			i += 2
		case 'f':
			b.WriteByte('\f')
			i += 2
		case 'v':
			b.WriteByte('\v')
			i += 2
		case '0':
			b.WriteByte(0)
			i += 2
		case 'x':
			if i+4 > len(body) {
				return "", false
			}
			v, err := strconv.ParseUint(body[i+2:i+4], 16, 16)
			if err != nil {
				return "", false
			}
			b.WriteRune(rune(v))
			i += 4
		case 'u':
			if i+2 < len(body) && body[i+2] == '{' {
				end := strings.IndexByte(body[i+3:], '}')
				if end < 0 {
					return "", false
				}
				v, err := strconv.ParseUint(body[i+3:i+3+end], 16, 32)
				if err != nil {
					return "", false
				}
				b.WriteRune(rune(v))
				i += 4 + end
			} else {
				if i+6 > len(body) {
					return "", false
				}
				v, err := strconv.ParseUint(body[i+2:i+6], 16, 32)
				if err != nil {
					return "", false
				}
				b.WriteRune(rune(v))
				i += 6
			}
		default:
			// \\, \', \", \` and line continuations collapse to the
			// escaped character itself.
			b.WriteByte(esc)
			i += 2
		}
	}
	return b.String(), true
}

// NumberValue parses a numeric-literal node, handling hex, octal and
// binary prefixes.
func NumberValue(n Node) (float64, bool) {
	if !IsNumber(n) {
		return 0, false
	}
	return ParseJSNumber(n.Text())
}

// ParseJSNumber parses a JS numeric literal string.
func ParseJSNumber(text string) (float64, bool) {
	t := strings.TrimSuffix(strings.ReplaceAll(text, "_", ""), "n")
	lower := strings.ToLower(t)
	switch {
	case strings.HasPrefix(lower, "0x"):
		v, err := strconv.ParseUint(lower[2:], 16, 64)
		if err != nil {
			return 0, false
		}
		return float64(v), true
	case strings.HasPrefix(lower, "0o"):
		v, err := strconv.ParseUint(lower[2:], 8, 64)
		if err != nil {
			return 0, false
		}
		return float64(v), true
	case strings.HasPrefix(lower, "0b"):
		v, err := strconv.ParseUint(lower[2:], 2, 64)
		if err != nil {
			return 0, false
		}
		return float64(v), true
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatNumber renders a float as a JS numeric literal.
func FormatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// QuoteString renders a Go string as a single-quoted JS literal.
func QuoteString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("\\'")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			if r < 0x20 {
				b.WriteString("\\x")
				b.WriteString(strings.ToUpper(strconv.FormatInt(int64(r), 16)))
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('\'')
	return b.String()
}
