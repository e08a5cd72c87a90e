// Package envsim detects which browser globals a script touches and
// synthesizes a portable environment shim for running it outside the
// browser. Values come from a static catalog, optionally overlaid with
// live values pulled from a real page and model-filled gaps.
package envsim

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

// Target runtimes for shim emission.
const (
	RuntimeNodeJS = "nodejs"
	RuntimePython = "python"
	RuntimeBoth   = "both"
)

// defaultExtractDepth bounds live object serialization.
const defaultExtractDepth = 3

// Request configures one synthesis run.
type Request struct {
	Source          string
	TargetRuntime   string // nodejs, python, both
	AutoFetch       bool   // pull live values via the evaluator
	IncludeComments bool
	ExtractDepth    int
}

// PageEvaluator abstracts the live browser for value extraction. The
// dispatcher passes an adapter over the active page; tests pass fakes.
type PageEvaluator interface {
	Evaluate(ctx context.Context, js string) (json.RawMessage, error)
}

// EmulationCode holds the generated shims per runtime.
type EmulationCode struct {
	NodeJS string `json:"nodejs,omitempty"`
	Python string `json:"python,omitempty"`
}

// Stats summarizes manifest coverage.
type Stats struct {
	Total  int `json:"total"`  // detected paths
	Filled int `json:"filled"` // paths with a manifest value
	Manual int `json:"manual"` // paths left for manual work
}

// Result is the synthesis outcome.
type Result struct {
	DetectedVariables map[string][]string    `json:"detectedVariables"` // grouped by root
	EmulationCode     EmulationCode          `json:"emulationCode"`
	MissingAPIs       []string               `json:"missingAPIs"`
	VariableManifest  map[string]interface{} `json:"variableManifest"`
	Recommendations   []string               `json:"recommendations"`
	Stats             Stats                  `json:"stats"`
}

// Synthesizer is stateless across calls.
type Synthesizer struct {
	model model.Client  // nil disables model fill
	page  PageEvaluator // nil disables live extraction
}

// New creates a synthesizer. Both collaborators may be nil.
func New(mdl model.Client, page PageEvaluator) *Synthesizer {
	return &Synthesizer{model: mdl, page: page}
}

// Analyze runs detection, manifest assembly and shim emission.
func (s *Synthesizer) Analyze(ctx context.Context, req Request) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryEnvSim, "Analyze")
	defer timer.Stop()

	paths, err := detectPaths(req.Source)
	if err != nil {
		return nil, err
	}

	manifest := make(map[string]interface{})
	for _, p := range paths {
		if v, ok := staticCatalog[p]; ok {
			manifest[p] = v
		}
	}

	if req.AutoFetch && s.page != nil {
		depth := req.ExtractDepth
		if depth <= 0 {
			depth = defaultExtractDepth
		}
		s.extractLive(ctx, paths, manifest, depth)
	}

	if s.model != nil {
		s.fillWithModel(ctx, paths, manifest)
	}

	var missing []string
	for _, p := range paths {
		if _, ok := manifest[p]; !ok {
			missing = append(missing, p)
		}
	}

	res := &Result{
		DetectedVariables: groupByRoot(paths),
		VariableManifest:  manifest,
		MissingAPIs:       missing,
		Stats: Stats{
			Total:  len(paths),
			Filled: len(paths) - len(missing),
			Manual: len(missing),
		},
	}

	switch req.TargetRuntime {
	case RuntimePython:
		res.EmulationCode.Python = emitPython(manifest, req.IncludeComments)
	case RuntimeBoth:
		res.EmulationCode.NodeJS = emitNodeJS(manifest, req.IncludeComments)
		res.EmulationCode.Python = emitPython(manifest, req.IncludeComments)
	default:
		res.EmulationCode.NodeJS = emitNodeJS(manifest, req.IncludeComments)
	}

	res.Recommendations = recommendations(res)
	logging.EnvSim("synthesized env: %d paths, %d filled, %d missing", res.Stats.Total, res.Stats.Filled, res.Stats.Manual)
	return res, nil
}

// detectPaths walks member expressions rooted at a browser global and
// returns the sorted set of dotted paths.
func detectPaths(source string) ([]string, error) {
	tree, err := jsast.Parse(source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	set := make(map[string]bool)
	record := func(path string) {
		// window.navigator.userAgent and navigator.userAgent are the
		// same dependency; window.innerWidth keeps its prefix.
		if rest := strings.TrimPrefix(path, "window."); rest != path {
			if browserRoots[strings.SplitN(rest, ".", 2)[0]] {
				path = rest
			}
		}
		root := strings.SplitN(path, ".", 2)[0]
		if browserRoots[root] {
			set[path] = true
		}
	}

	tree.WalkNamed(jsast.Visitor{
		Enter: map[string]func(*jsast.Path){
			"member_expression": func(p *jsast.Path) {
				if jsast.IsMemberExpr(p.Parent()) {
					return // outermost chain only
				}
				if path, ok := jsast.MemberPath(p.Node()); ok {
					record(path)
				}
			},
			"subscript_expression": func(p *jsast.Path) {
				if jsast.IsMemberExpr(p.Parent()) {
					return
				}
				if path, ok := jsast.MemberPath(p.Node()); ok {
					record(path)
				}
			},
			"identifier": func(p *jsast.Path) {
				// A bare global reference (typeof window, screen alone).
				n := p.Node()
				if !browserRoots[n.Text()] {
					return
				}
				parent := p.Parent()
				if parent.Valid() && (jsast.IsMemberExpr(parent) || parent.Kind() == "variable_declarator") {
					return
				}
				set[n.Text()] = true
			},
		},
	})

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func groupByRoot(paths []string) map[string][]string {
	groups := make(map[string][]string)
	for _, p := range paths {
		root := strings.SplitN(p, ".", 2)[0]
		switch root {
		case "window", "document", "navigator", "location", "screen":
			groups[root] = append(groups[root], p)
		default:
			groups["other"] = append(groups["other"], p)
		}
	}
	return groups
}

// extractLive pulls real values from the page, serializing objects up
// to depth with [Function] placeholders and a seen-set cycle guard.
func (s *Synthesizer) extractLive(ctx context.Context, paths []string, manifest map[string]interface{}, depth int) {
	js := fmt.Sprintf(`
	() => {
		const serialize = (v, depth, seen) => {
			if (v === null || v === undefined) return v;
			const t = typeof v;
			if (t === 'function') return '[Function: ' + (v.name || 'anonymous') + ']';
			if (t === 'string' || t === 'number' || t === 'boolean') return v;
			if (depth <= 0) return '[Object]';
			if (seen.has(v)) return '[Circular]';
			seen.add(v);
			if (Array.isArray(v)) return v.slice(0, 32).map(x => serialize(x, depth - 1, seen));
			const out = {};
			for (const k of Object.keys(v).slice(0, 64)) {
				try { out[k] = serialize(v[k], depth - 1, seen); } catch (e) {}
			}
			return out;
		};
		const resolve = (path) => {
			let cur = window;
			for (const seg of path.split('.')) {
				if (cur === null || cur === undefined) return undefined;
				try { cur = cur[seg]; } catch (e) { return undefined; }
			}
			return cur;
		};
		const paths = %s;
		const out = {};
		for (const p of paths) {
			const v = resolve(p);
			if (v !== undefined) out[p] = serialize(v, %d, new Set());
		}
		return out;
	}
	`, mustJSON(paths), depth)

	raw, err := s.page.Evaluate(ctx, js)
	if err != nil {
		logging.EnvSimDebug("live extraction failed: %v", err)
		return
	}
	var values map[string]interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		logging.EnvSimDebug("live extraction unparseable: %v", err)
		return
	}
	for p, v := range values {
		manifest[p] = v
	}
}

// fillWithModel asks for realistic, mutually consistent values for the
// still-missing paths.
func (s *Synthesizer) fillWithModel(ctx context.Context, paths []string, manifest map[string]interface{}) {
	var missing []string
	for _, p := range paths {
		if _, ok := manifest[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return
	}

	prompt := "Provide realistic, mutually consistent values for these browser environment paths as a single JSON object keyed by path. Use \"[Function: name]\" strings for functions. Reply with only JSON.\n" +
		strings.Join(missing, "\n")
	resp, err := s.model.Chat(ctx, []model.Message{
		{Role: "system", Content: "You emulate a desktop Chrome browser environment for sandboxed script execution."},
		{Role: "user", Content: prompt},
	}, model.ChatOptions{Temperature: 0.2})
	if err != nil {
		logging.EnvSimDebug("model fill skipped: %v", err)
		return
	}

	content := strings.TrimSpace(resp.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "`\n ")
	var values map[string]interface{}
	if err := json.Unmarshal([]byte(content), &values); err != nil {
		return
	}
	for _, p := range missing {
		if v, ok := values[p]; ok {
			manifest[p] = v
		}
	}
}

func recommendations(res *Result) []string {
	var out []string
	if len(res.MissingAPIs) > 0 {
		out = append(out, fmt.Sprintf("%d paths have no value; fill them manually or enable autoFetch against the live site", len(res.MissingAPIs)))
	}
	for _, p := range res.MissingAPIs {
		if strings.HasPrefix(p, "crypto.") {
			out = append(out, "the script uses WebCrypto; the shim stubs it but real digests need a crypto polyfill")
			break
		}
	}
	if len(res.VariableManifest) > 0 && len(res.MissingAPIs) == 0 {
		out = append(out, "all detected paths are filled; run the target script under the emitted shim")
	}
	return out
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}
