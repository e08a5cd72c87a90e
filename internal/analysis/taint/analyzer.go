// Package taint tracks untrusted data flow through JavaScript source:
// a two-pass walk identifies sources, sinks and sanitizers, then
// propagates taint through bindings until a source value reaches a
// sink with no sanitizer on the way.
package taint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"jsrecon/internal/jsast"
	"jsrecon/internal/logging"
	"jsrecon/internal/model"
)

// Endpoint is one end of a taint path.
type Endpoint struct {
	Kind     string `json:"kind"`
	Location int    `json:"location"` // 1-based line
	Label    string `json:"label,omitempty"`
}

// Path is one source-to-sink flow with no sanitizer in between.
type Path struct {
	Source Endpoint `json:"source"`
	Sink   Endpoint `json:"sink"`
	Lines  []int    `json:"path"` // source line then sink line
}

// GraphNode is a node of the reported flow graph.
type GraphNode struct {
	ID    string `json:"id"`
	Role  string `json:"role"` // source or sink
	Kind  string `json:"kind"`
	Line  int    `json:"line"`
	Label string `json:"label"`
}

// GraphEdge connects a source node to a sink node.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the assembled flow graph.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Result is the analyzer output.
type Result struct {
	Graph      Graph      `json:"graph"`
	Sources    []Endpoint `json:"sources"`
	Sinks      []Endpoint `json:"sinks"`
	TaintPaths []Path     `json:"taintPaths"`
}

// Analyzer is stateless across calls; sanitizers can be extended per
// instance.
type Analyzer struct {
	model      model.Client // nil disables the model enhancement
	sanitizers map[string]bool
}

// New creates an analyzer. mdl may be nil.
func New(mdl model.Client) *Analyzer {
	s := make(map[string]bool, len(defaultSanitizers))
	for k := range defaultSanitizers {
		s[k] = true
	}
	return &Analyzer{model: mdl, sanitizers: s}
}

// WithSanitizers registers additional sanitizer names at runtime.
func (a *Analyzer) WithSanitizers(names ...string) *Analyzer {
	for _, n := range names {
		a.sanitizers[n] = true
	}
	return a
}

type scopedName struct {
	scope int
	name  string
}

type taintInfo struct {
	kind string
	line int
}

type analysis struct {
	a     *Analyzer
	tree  *jsast.Tree
	taint map[scopedName]taintInfo

	sources []Endpoint
	sinks   []Endpoint
	paths   []Path
	seen    map[string]bool // (sourceLine,sinkLine) dedupe
}

// Analyze runs both passes over source.
func (a *Analyzer) Analyze(ctx context.Context, source string) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryTaint, "Analyze")
	defer timer.Stop()

	tree, err := jsast.Parse(source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	st := &analysis{
		a:     a,
		tree:  tree,
		taint: make(map[scopedName]taintInfo),
		seen:  make(map[string]bool),
	}
	st.identify()
	st.propagate()

	res := &Result{
		Sources:    st.sources,
		Sinks:      st.sinks,
		TaintPaths: st.paths,
	}
	res.Graph = buildGraph(st)

	if a.model != nil {
		a.enhanceWithModel(ctx, source, st, res)
	}
	logging.Taint("analysis: %d sources, %d sinks, %d paths", len(res.Sources), len(res.Sinks), len(res.TaintPaths))
	return res, nil
}

// identify is the first pass: record source and sink locations without
// yet following assignments.
func (st *analysis) identify() {
	st.tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"member_expression": func(p *jsast.Path) {
				n := p.Node()
				if jsast.IsMemberExpr(p.Parent()) {
					return // outermost chains only
				}
				if path, ok := jsast.MemberPath(n); ok {
					if kind, isSource := matchSourcePath(path); isSource {
						st.addSource(Endpoint{Kind: kind, Location: n.StartLine(), Label: path})
					}
				}
			},
			"call_expression": func(p *jsast.Path) {
				n := p.Node()
				name := jsast.CalleeName(n)
				if kind, ok := sourceCalls[name]; ok {
					st.addSource(Endpoint{Kind: kind, Location: n.StartLine(), Label: name})
				}
				if kind, sink := st.sinkKindOf(n, name); sink {
					st.addSink(Endpoint{Kind: kind, Location: n.StartLine(), Label: name})
				}
			},
			"new_expression": func(p *jsast.Path) {
				n := p.Node()
				ctor := n.Field("constructor")
				if ctor.Valid() {
					if kind, ok := sourceConstructors[ctor.Text()]; ok {
						st.addSource(Endpoint{Kind: kind, Location: n.StartLine(), Label: "new " + ctor.Text()})
					}
					if ctor.Text() == "Function" {
						st.addSink(Endpoint{Kind: SinkFunction, Location: n.StartLine(), Label: "new Function"})
					}
				}
			},
			"assignment_expression": func(p *jsast.Path) {
				n := p.Node()
				left := n.Field("left")
				if left.Valid() && left.Kind() == "member_expression" {
					prop := left.Field("property")
					if prop.Valid() && htmlSinkProps[prop.Text()] {
						st.addSink(Endpoint{Kind: SinkHTML, Location: n.StartLine(), Label: prop.Text()})
					}
				}
			},
		},
	})
}

// sinkKindOf classifies a call node as a sink.
func (st *analysis) sinkKindOf(n jsast.Node, name string) (string, bool) {
	if kind, ok := sinkCalls[name]; ok {
		return kind, true
	}
	if timerNames[name] {
		args := jsast.CallArguments(n)
		if len(args) > 0 && !args[0].IsFunctionLike() && args[0].Kind() != "identifier" {
			return SinkTimer, true
		}
		if len(args) > 0 && jsast.IsString(args[0]) {
			return SinkTimer, true
		}
		if len(args) > 0 && args[0].Kind() == "identifier" {
			// A string-typed variable passed to a timer is a sink; the
			// propagation pass checks its taint.
			return SinkTimer, true
		}
		return "", false
	}
	callee := jsast.Callee(n)
	if callee.Valid() && callee.Kind() == "member_expression" {
		prop := callee.Field("property")
		if prop.Valid() {
			switch {
			case sqlMethodNames[prop.Text()]:
				return SinkSQL, true
			case commandMethodNames[prop.Text()]:
				return SinkCommand, true
			case fsMethodNames[prop.Text()]:
				return SinkFilesystem, true
			}
		}
	}
	return "", false
}

// propagate is the second pass: follow declarators and assignments in
// document order, then check every sink's inputs.
func (st *analysis) propagate() {
	st.tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"variable_declarator": func(p *jsast.Path) {
				n := p.Node()
				name := n.Field("name")
				value := n.Field("value")
				if !name.Valid() || !value.Valid() || name.Kind() != "identifier" {
					return
				}
				st.bind(p.ScopeID(), name.Text(), value)
			},
			"assignment_expression": func(p *jsast.Path) {
				n := p.Node()
				left := n.Field("left")
				right := n.Field("right")
				if !left.Valid() || !right.Valid() {
					return
				}
				if left.Kind() == "identifier" {
					st.bind(p.ScopeID(), left.Text(), right)
					return
				}
				// Sink assignment: tainted RHS into an HTML property.
				if left.Kind() == "member_expression" {
					prop := left.Field("property")
					if prop.Valid() && htmlSinkProps[prop.Text()] {
						if info, tainted := st.exprTaint(right, p.ScopeID()); tainted {
							st.addPath(info, Endpoint{Kind: SinkHTML, Location: n.StartLine(), Label: prop.Text()})
						}
					}
				}
			},
			"call_expression": func(p *jsast.Path) {
				n := p.Node()
				name := jsast.CalleeName(n)
				kind, sink := st.sinkKindOf(n, name)
				if !sink {
					return
				}
				for _, arg := range jsast.CallArguments(n) {
					if info, tainted := st.exprTaint(arg, p.ScopeID()); tainted {
						st.addPath(info, Endpoint{Kind: kind, Location: n.StartLine(), Label: name})
						break
					}
				}
			},
		},
	})
}

// bind updates the taint map for an assignment target. A sanitizer
// return erases inbound taint on the binding.
func (st *analysis) bind(scope int, name string, value jsast.Node) {
	key := scopedName{scope: scope, name: name}
	if info, tainted := st.exprTaint(value, scope); tainted {
		st.taint[key] = info
		return
	}
	delete(st.taint, key)
}

// exprTaint resolves an expression's taint under the propagation rules:
// identifier copies carry kind, binary expressions carry the first
// tainted operand, sanitizer calls clear, other calls propagate a
// tainted first argument.
func (st *analysis) exprTaint(n jsast.Node, scope int) (taintInfo, bool) {
	if !n.Valid() {
		return taintInfo{}, false
	}
	switch n.Kind() {
	case "identifier":
		if info, ok := st.lookup(scope, n.Text()); ok {
			return info, true
		}
	case "member_expression", "subscript_expression":
		if path, ok := jsast.MemberPath(n); ok {
			if kind, isSource := matchSourcePath(path); isSource {
				return taintInfo{kind: kind, line: n.StartLine()}, true
			}
		}
		// property access on a tainted object stays tainted
		obj := n.Field("object")
		if obj.Valid() {
			return st.exprTaint(obj, scope)
		}
	case "binary_expression":
		if info, ok := st.exprTaint(n.Field("left"), scope); ok {
			return info, true
		}
		return st.exprTaint(n.Field("right"), scope)
	case "template_string":
		for i := 0; i < n.NamedChildCount(); i++ {
			c := n.NamedChild(i)
			if c.Kind() == "template_substitution" {
				if info, ok := st.exprTaint(c.NamedChild(0), scope); ok {
					return info, true
				}
			}
		}
	case "parenthesized_expression":
		return st.exprTaint(n.NamedChild(0), scope)
	case "await_expression":
		return st.exprTaint(n.NamedChild(0), scope)
	case "call_expression":
		name := jsast.CalleeName(n)
		if st.a.sanitizers[name] {
			return taintInfo{}, false // sanitizer output is clean
		}
		if kind, ok := sourceCalls[name]; ok {
			return taintInfo{kind: kind, line: n.StartLine()}, true
		}
		// Method call on a tainted receiver (u.slice(1)) stays tainted.
		callee := jsast.Callee(n)
		if callee.Valid() && callee.Kind() == "member_expression" {
			if st.a.sanitizers[calleePath(callee)] {
				return taintInfo{}, false
			}
			if info, ok := st.exprTaint(callee.Field("object"), scope); ok {
				return info, true
			}
		}
		// Unknown callee with a tainted first argument propagates.
		args := jsast.CallArguments(n)
		if len(args) > 0 {
			return st.exprTaint(args[0], scope)
		}
	case "new_expression":
		ctor := n.Field("constructor")
		if ctor.Valid() {
			if kind, ok := sourceConstructors[ctor.Text()]; ok {
				return taintInfo{kind: kind, line: n.StartLine()}, true
			}
		}
	}
	return taintInfo{}, false
}

// lookup resolves a name against the current scope, then program scope.
func (st *analysis) lookup(scope int, name string) (taintInfo, bool) {
	if info, ok := st.taint[scopedName{scope: scope, name: name}]; ok {
		return info, true
	}
	if scope != 0 {
		if info, ok := st.taint[scopedName{scope: 0, name: name}]; ok {
			return info, true
		}
	}
	return taintInfo{}, false
}

func calleePath(callee jsast.Node) string {
	if path, ok := jsast.MemberPath(callee); ok {
		return path
	}
	return ""
}

func (st *analysis) addSource(e Endpoint) {
	for _, s := range st.sources {
		if s.Location == e.Location && s.Kind == e.Kind {
			return
		}
	}
	st.sources = append(st.sources, e)
}

func (st *analysis) addSink(e Endpoint) {
	for _, s := range st.sinks {
		if s.Location == e.Location && s.Kind == e.Kind {
			return
		}
	}
	st.sinks = append(st.sinks, e)
}

func (st *analysis) addPath(src taintInfo, sink Endpoint) {
	key := fmt.Sprintf("%d:%d", src.line, sink.Location)
	if st.seen[key] {
		return
	}
	st.seen[key] = true
	st.paths = append(st.paths, Path{
		Source: Endpoint{Kind: src.kind, Location: src.line},
		Sink:   sink,
		Lines:  []int{src.line, sink.Location},
	})
}

func buildGraph(st *analysis) Graph {
	var g Graph
	nodeID := func(role string, e Endpoint) string {
		return fmt.Sprintf("%s:%s:%d", role, e.Kind, e.Location)
	}
	for _, s := range st.sources {
		g.Nodes = append(g.Nodes, GraphNode{
			ID: nodeID("source", s), Role: "source", Kind: s.Kind, Line: s.Location, Label: s.Label,
		})
	}
	for _, s := range st.sinks {
		g.Nodes = append(g.Nodes, GraphNode{
			ID: nodeID("sink", s), Role: "sink", Kind: s.Kind, Line: s.Location, Label: s.Label,
		})
	}
	for _, p := range st.paths {
		g.Edges = append(g.Edges, GraphEdge{
			From: nodeID("source", p.Source),
			To:   nodeID("sink", p.Sink),
		})
	}
	return g
}

// enhanceWithModel asks the model for flows the static pass missed.
// Answers merge under the same (source-line, sink-line) dedupe.
func (a *Analyzer) enhanceWithModel(ctx context.Context, source string, st *analysis, res *Result) {
	const sourceLimit = 16 * 1024
	trimmed := source
	if len(trimmed) > sourceLimit {
		trimmed = trimmed[:sourceLimit]
	}

	var b strings.Builder
	b.WriteString("Known sources:\n")
	for _, s := range res.Sources {
		fmt.Fprintf(&b, "- line %d: %s (%s)\n", s.Location, s.Label, s.Kind)
	}
	b.WriteString("Known sinks:\n")
	for _, s := range res.Sinks {
		fmt.Fprintf(&b, "- line %d: %s (%s)\n", s.Location, s.Label, s.Kind)
	}
	b.WriteString("\nList additional taint flows as a JSON array of objects ")
	b.WriteString(`{"sourceLine":n,"sourceKind":"...","sinkLine":n,"sinkKind":"..."}. `)
	b.WriteString("Reply with only JSON.\n\nCode:\n")
	b.WriteString(trimmed)

	resp, err := a.model.Chat(ctx, []model.Message{
		{Role: "system", Content: "You are a static-analysis assistant tracing untrusted data flows in JavaScript."},
		{Role: "user", Content: b.String()},
	}, model.ChatOptions{Temperature: 0})
	if err != nil {
		logging.TaintDebug("model enhancement skipped: %v", err)
		return
	}

	var extra []struct {
		SourceLine int    `json:"sourceLine"`
		SourceKind string `json:"sourceKind"`
		SinkLine   int    `json:"sinkLine"`
		SinkKind   string `json:"sinkKind"`
	}
	content := strings.TrimSpace(resp.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "`\n ")
	if err := json.Unmarshal([]byte(content), &extra); err != nil {
		logging.TaintDebug("model enhancement unparseable: %v", err)
		return
	}
	for _, e := range extra {
		key := fmt.Sprintf("%d:%d", e.SourceLine, e.SinkLine)
		if st.seen[key] || e.SourceLine <= 0 || e.SinkLine <= 0 {
			continue
		}
		st.seen[key] = true
		res.TaintPaths = append(res.TaintPaths, Path{
			Source: Endpoint{Kind: e.SourceKind, Location: e.SourceLine},
			Sink:   Endpoint{Kind: e.SinkKind, Location: e.SinkLine},
			Lines:  []int{e.SourceLine, e.SinkLine},
		})
	}
	sort.Slice(res.TaintPaths, func(i, j int) bool {
		return res.TaintPaths[i].Source.Location < res.TaintPaths[j].Source.Location
	})
}
