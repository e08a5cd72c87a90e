package obfuscation

import (
	"fmt"

	"jsrecon/internal/jsast"
)

// Structural thresholds for the VM scan.
const (
	vmSwitchCaseMin  = 8  // cases before a switch counts as a dispatcher
	vmArrayElemMin   = 32 // elements before an array counts as bytecode
	vmComplexityMid  = 32
	vmComplexityHigh = 128
)

// scanVMFeatures walks the syntax tree for the structural signature of
// an embedded interpreter: a function holding a large switch, a large
// numeric/string array, a program-counter increment and a tight loop.
func scanVMFeatures(source string) *VMFeatures {
	tree, err := jsast.Parse(source)
	if err != nil {
		return &VMFeatures{Complexity: "low"}
	}
	defer tree.Close()

	f := &VMFeatures{}
	var interpreterLine int

	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"switch_statement": func(p *jsast.Path) {
				body := p.Node().Field("body")
				if !body.Valid() {
					return
				}
				cases := 0
				for i := 0; i < body.NamedChildCount(); i++ {
					k := body.NamedChild(i).Kind()
					if k == "switch_case" || k == "switch_default" {
						cases++
					}
				}
				if cases >= vmSwitchCaseMin {
					f.HasSwitch = true
					if cases > f.InstructionCount {
						f.InstructionCount = cases
					}
					if interpreterLine == 0 {
						interpreterLine = enclosingFunctionLine(p)
					}
				}
			},
			"array": func(p *jsast.Path) {
				n := p.Node()
				if n.NamedChildCount() < vmArrayElemMin {
					return
				}
				// Bytecode arrays are homogeneous numbers or strings.
				homogeneous := true
				for i := 0; i < n.NamedChildCount(); i++ {
					k := n.NamedChild(i).Kind()
					if k != "number" && k != "string" {
						homogeneous = false
						break
					}
				}
				if homogeneous {
					f.HasInstructionArray = true
				}
			},
			"subscript_expression": func(p *jsast.Path) {
				// pc increment inside an index: ops[pc++]
				idx := p.Node().Field("index")
				if idx.Valid() && idx.Kind() == "update_expression" {
					f.HasProgramCounter = true
				}
			},
			"while_statement": func(p *jsast.Path) {
				cond := p.Node().Field("condition")
				if cond.Valid() && isAlwaysTrue(cond) {
					// Tight loop; only meaningful with a dispatcher inside,
					// which the switch rule records separately.
					if interpreterLine == 0 {
						interpreterLine = p.Node().StartLine()
					}
				}
			},
		},
	})

	switch {
	case f.InstructionCount >= vmComplexityHigh:
		f.Complexity = "high"
	case f.InstructionCount >= vmComplexityMid:
		f.Complexity = "medium"
	default:
		f.Complexity = "low"
	}
	if interpreterLine > 0 {
		f.InterpreterLocation = fmt.Sprintf("line %d", interpreterLine)
	}
	return f
}

func enclosingFunctionLine(p *jsast.Path) int {
	for i := 0; ; i++ {
		anc := p.Ancestor(i)
		if !anc.Valid() {
			return p.Node().StartLine()
		}
		if anc.IsFunctionLike() {
			return anc.StartLine()
		}
	}
}

// isAlwaysTrue matches while(true) and while(!![]) conditions,
// unwrapping parentheses.
func isAlwaysTrue(cond jsast.Node) bool {
	for cond.Valid() && cond.Kind() == "parenthesized_expression" {
		cond = cond.NamedChild(0)
	}
	if !cond.Valid() {
		return false
	}
	switch cond.Kind() {
	case "true":
		return true
	case "unary_expression":
		t := cond.Text()
		return t == "!![]" || t == "!0"
	case "number":
		v, ok := jsast.NumberValue(cond)
		return ok && v != 0
	}
	return false
}
