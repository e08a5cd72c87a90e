package deobfuscate

import (
	"context"
	"fmt"
	"strings"

	"jsrecon/internal/analysis/obfuscation"
	"jsrecon/internal/jsast"
	"jsrecon/internal/logging"
	"jsrecon/internal/model"
)

// modelSourceLimit bounds how much source a model-assisted pass sends.
const modelSourceLimit = 24 * 1024

// unflattenControlFlow looks for while(true){switch(state){...}} state
// machines. With a model available it asks for a linear reconstruction
// and accepts the answer only when it parses; without one the shape is
// recorded as not resolved.
func (r *run) unflattenControlFlow(ctx context.Context) {
	tree, err := jsast.Parse(r.source)
	if err != nil {
		r.record("unflatten", "reconstruct flattened control flow", false, 0)
		return
	}

	var loops []jsast.Node
	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"while_statement": func(p *jsast.Path) {
				n := p.Node()
				if !conditionAlwaysTrue(n.Field("condition")) {
					return
				}
				body := n.Field("body")
				if body.Valid() && containsSwitch(body) {
					loops = append(loops, n)
					p.SkipChildren()
				}
			},
		},
	})

	if len(loops) == 0 {
		tree.Close()
		r.record("unflatten", "reconstruct flattened control flow", true, 0)
		return
	}
	if r.d.model == nil {
		tree.Close()
		logging.Deob("flattened loop detected but no model configured; leaving unchanged")
		r.record("unflatten", "flattened control flow detected, not resolved (no model)", false, 0)
		return
	}

	count := 0
	for _, loop := range loops {
		text := loop.Text()
		if len(text) > modelSourceLimit {
			continue
		}
		rewritten, err := r.askModelForRewrite(ctx,
			"Rewrite this JavaScript control-flow-flattened state machine as straight-line code with identical behavior. Reply with only the replacement code, no fences, no commentary.",
			text)
		if err != nil {
			logging.DeobWarn("unflatten: model call failed: %v", err)
			continue
		}
		if _, perr := jsast.Parse(rewritten); perr != nil {
			logging.DeobWarn("unflatten: model output does not parse, discarded")
			continue
		}
		tree.Replace(loop, rewritten)
		count++
	}

	out, err := tree.Generate()
	tree.Close()
	if err != nil || count == 0 {
		r.record("unflatten", "reconstruct flattened control flow", count > 0, 0)
		return
	}
	r.source = out
	r.record("unflatten", "reconstruct flattened control flow", true, count)
}

// simplify removes now-dead string-table declarations and empty
// statements left behind by earlier passes.
func (r *run) simplify() {
	tree, err := jsast.Parse(r.source)
	if err != nil {
		r.record("simplify", "drop dead tables and empty statements", false, 0)
		return
	}
	defer tree.Close()

	// Count remaining identifier references per extracted table.
	refs := make(map[string]int)
	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"identifier": func(p *jsast.Path) {
				name := p.Node().Text()
				if _, ok := r.arrays[name]; ok {
					refs[name]++
				}
			},
		},
	})

	count := 0
	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"variable_declarator": func(p *jsast.Path) {
				n := p.Node()
				name := n.Field("name")
				if !name.Valid() {
					return
				}
				// The declarator itself is the only remaining reference.
				if _, ok := r.arrays[name.Text()]; ok && refs[name.Text()] == 1 {
					decl := p.Parent()
					if decl.Valid() && decl.NamedChildCount() == 1 {
						tree.Remove(decl)
					} else {
						tree.Remove(n)
					}
					count++
					p.SkipChildren()
				}
			},
			"empty_statement": func(p *jsast.Path) {
				tree.Remove(p.Node())
				count++
			},
		},
	})

	if count == 0 {
		r.record("simplify", "drop dead tables and empty statements", true, 0)
		return
	}
	out, err := tree.Generate()
	if err != nil {
		r.record("simplify", "drop dead tables and empty statements", false, 0)
		return
	}
	r.source = out
	r.record("simplify", "drop dead tables and empty statements", true, count)
}

// renameIdentifiers rewrites mangled names to stable var_N
// placeholders, numbering by first appearance. A mangled name gets one
// placeholder in every scope, so a declaration that shadows an outer
// name of the same spelling shares that name's placeholder.
func (r *run) renameIdentifiers() {
	tree, err := jsast.Parse(r.source)
	if err != nil {
		r.record("rename-identifiers", "rename mangled identifiers to var_N", false, 0)
		return
	}
	defer tree.Close()

	type scopedName struct {
		scope int
		name  string
	}
	assigned := make(map[scopedName]string)
	byName := make(map[string]string) // fallback: same mangled name, one placeholder
	next := 0
	count := 0

	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"identifier": func(p *jsast.Path) {
				n := p.Node()
				name := n.Text()
				if !r.d.manglePattern.MatchString(name) {
					return
				}
				key := scopedName{scope: p.ScopeID(), name: name}
				placeholder, ok := assigned[key]
				if !ok {
					// Reuse the placeholder already given to this name in
					// any scope; shadowing declarations are not told apart.
					if existing, seen := byName[name]; seen {
						placeholder = existing
					} else {
						placeholder = fmt.Sprintf("var_%d", next)
						next++
						byName[name] = placeholder
					}
					assigned[key] = placeholder
				}
				tree.Replace(n, placeholder)
				count++
			},
		},
	})

	if count == 0 {
		r.record("rename-identifiers", "rename mangled identifiers to var_N", true, 0)
		return
	}
	out, err := tree.Generate()
	if err != nil {
		r.record("rename-identifiers", "rename mangled identifiers to var_N", false, 0)
		return
	}
	r.source = out
	r.record("rename-identifiers", "rename mangled identifiers to var_N", true, count)
}

// stubVMComponents marks the interpreter function of a VM-protected
// program. With a model it requests a lifted rewrite; otherwise it
// substitutes a same-length stub so downstream offsets survive.
func (r *run) stubVMComponents(ctx context.Context, features *obfuscation.VMFeatures) {
	tree, err := jsast.Parse(r.source)
	if err != nil {
		r.record("vm-stub", "identify and stub VM interpreter", false, 0)
		return
	}

	// The interpreter is the function holding the largest switch.
	var interpreter jsast.Node
	bestCases := 0
	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"switch_statement": func(p *jsast.Path) {
				body := p.Node().Field("body")
				if !body.Valid() {
					return
				}
				cases := body.NamedChildCount()
				if cases <= bestCases {
					return
				}
				for i := 0; ; i++ {
					anc := p.Ancestor(i)
					if !anc.Valid() {
						return
					}
					if anc.IsFunctionLike() {
						bestCases = cases
						interpreter = anc
						return
					}
				}
			},
		},
	})

	if !interpreter.Valid() {
		tree.Close()
		r.record("vm-stub", "identify and stub VM interpreter", true, 0)
		return
	}

	if r.d.model != nil {
		text := interpreter.Text()
		if len(text) <= modelSourceLimit {
			rewritten, err := r.askModelForRewrite(ctx,
				"This function is a bytecode interpreter from VM-based JavaScript obfuscation. Reconstruct the program it executes as plain JavaScript. Reply with only the replacement code.",
				text)
			if err == nil {
				if _, perr := jsast.Parse(rewritten); perr == nil {
					tree.Replace(interpreter, rewritten)
					out, gerr := tree.Generate()
					tree.Close()
					if gerr == nil {
						r.source = out
						r.record("vm-stub", "model-assisted VM lift", true, 1)
						return
					}
					r.record("vm-stub", "model-assisted VM lift", false, 0)
					return
				}
			}
			logging.DeobWarn("vm lift: model output unusable, falling back to stub")
		}
	}

	// Same-length stub: a comment block padded to the original span.
	original := interpreter.Text()
	stub := "function vmInterpreterStub(){}/* vm interpreter: " +
		fmt.Sprintf("%d instructions, %s complexity ", instructionCount(features), complexity(features))
	if len(stub)+2 < len(original) {
		stub += strings.Repeat("*", len(original)-len(stub)-2)
	}
	stub += "*/"
	if len(stub) > len(original) {
		stub = stub[:len(original)]
		// Never truncate mid-comment-close; rebuild minimal form.
		if !strings.HasSuffix(stub, "*/") {
			stub = "function vmInterpreterStub(){}"
		}
	}
	tree.Replace(interpreter, stub)
	out, gerr := tree.Generate()
	tree.Close()
	if gerr != nil {
		r.record("vm-stub", "identify and stub VM interpreter", false, 0)
		return
	}
	r.source = out
	r.record("vm-stub", "stubbed VM interpreter in place", true, 1)
}

// modelCleanup asks the model for a final readability pass; the answer
// is used only when it still parses.
func (r *run) modelCleanup(ctx context.Context) {
	if len(r.source) > modelSourceLimit {
		r.record("model-cleanup", "source too large for model pass", true, 0)
		return
	}
	rewritten, err := r.askModelForRewrite(ctx,
		"Improve the readability of this deobfuscated JavaScript without changing behavior: meaningful names where inferable, straightforward expressions. Reply with only the code.",
		r.source)
	if err != nil {
		logging.DeobWarn("model cleanup failed: %v", err)
		r.record("model-cleanup", "model-assisted readability pass", false, 0)
		return
	}
	if _, perr := jsast.Parse(rewritten); perr != nil {
		r.record("model-cleanup", "model output discarded (does not parse)", false, 0)
		return
	}
	if rewritten == r.source {
		r.record("model-cleanup", "model-assisted readability pass", true, 0)
		return
	}
	r.source = rewritten
	r.record("model-cleanup", "model-assisted readability pass", true, 1)
}

func (r *run) askModelForRewrite(ctx context.Context, instruction, code string) (string, error) {
	resp, err := r.d.model.Chat(ctx, []model.Message{
		{Role: "system", Content: "You are a JavaScript deobfuscation assistant. Preserve program behavior exactly."},
		{Role: "user", Content: instruction + "\n\n" + code},
	}, model.ChatOptions{Temperature: 0.1})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.Content)
	out = strings.TrimPrefix(out, "```javascript")
	out = strings.TrimPrefix(out, "```js")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out), nil
}

func conditionAlwaysTrue(cond jsast.Node) bool {
	cond = unwrapParens(cond)
	if !cond.Valid() {
		return false
	}
	switch cond.Kind() {
	case "true":
		return true
	case "number":
		v, ok := jsast.NumberValue(cond)
		return ok && v != 0
	case "unary_expression":
		t := strings.ReplaceAll(cond.Text(), " ", "")
		return t == "!![]" || t == "!0"
	}
	return false
}

func containsSwitch(n jsast.Node) bool {
	if n.Kind() == "switch_statement" {
		return true
	}
	for i := 0; i < n.NamedChildCount(); i++ {
		if containsSwitch(n.NamedChild(i)) {
			return true
		}
	}
	return false
}

func instructionCount(f *obfuscation.VMFeatures) int {
	if f == nil {
		return 0
	}
	return f.InstructionCount
}

func complexity(f *obfuscation.VMFeatures) string {
	if f == nil {
		return "unknown"
	}
	return f.Complexity
}
