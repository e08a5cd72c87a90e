// Package deobfuscate runs the fixed-order transformer pipeline over
// obfuscated JavaScript: detect, extract string arrays, basic tree
// transforms, string decoding, array decryption, optional control-flow
// unflattening, simplification, optional renaming, optional
// model-assisted cleanup. Each pass consumes and returns source text,
// appends a transformation record, and must not change the observable
// semantics of the program.
package deobfuscate

import (
	"context"
	"regexp"

	"jsrecon/internal/analysis/obfuscation"
	"jsrecon/internal/logging"
	"jsrecon/internal/model"
)

// defaultManglePattern matches javascript-obfuscator style identifiers.
var defaultManglePattern = regexp.MustCompile(`^_0x[0-9a-fA-F]+$`)

// Transformation is one pass's record, append-only within a call.
type Transformation struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Success     bool   `json:"success"`
	Count       int    `json:"count"`
}

// Options tune one pipeline run.
type Options struct {
	Aggressive bool // enables unflattening and VM stubbing
	Rename     bool // rename mangled identifiers to var_N
}

// Result is the pipeline outcome.
type Result struct {
	Source          string              `json:"source"`
	Transformations []Transformation    `json:"transformations"`
	Confidence      float64             `json:"confidence"`
	Detection       *obfuscation.Result `json:"detection"`
}

// Deobfuscator holds the optional model adapter and the mangling
// pattern; it is stateless across calls.
type Deobfuscator struct {
	model         model.Client // nil disables model-assisted passes
	manglePattern *regexp.Regexp
}

// New creates a pipeline. mdl may be nil.
func New(mdl model.Client) *Deobfuscator {
	return &Deobfuscator{model: mdl, manglePattern: defaultManglePattern}
}

// WithManglePattern overrides the identifier pattern used by the
// string-array and rename passes.
func (d *Deobfuscator) WithManglePattern(re *regexp.Regexp) *Deobfuscator {
	d.manglePattern = re
	return d
}

// run is the per-call state threaded through the passes.
type run struct {
	d       *Deobfuscator
	source  string
	records []Transformation
	arrays  map[string][]string // extracted string arrays, name -> values
}

func (r *run) record(kind, desc string, success bool, count int) {
	r.records = append(r.records, Transformation{
		Kind:        kind,
		Description: desc,
		Success:     success,
		Count:       count,
	})
}

// Deobfuscate runs the pipeline on source. Pass order is fixed; a pass
// that cannot parse its input records failure and leaves the source
// unchanged for its successor.
func (d *Deobfuscator) Deobfuscate(ctx context.Context, source string, opts Options) *Result {
	timer := logging.StartTimer(logging.CategoryDeob, "Deobfuscate")
	defer timer.Stop()

	detection := obfuscation.Detect(source)
	r := &run{d: d, source: source, arrays: make(map[string][]string)}

	r.extractStringArrays()
	r.basicTransform()
	r.decodeStrings()
	r.decryptArrays()
	if opts.Aggressive {
		r.unflattenControlFlow(ctx)
	}
	r.simplify()
	if opts.Rename {
		r.renameIdentifiers()
	}
	if opts.Aggressive && hasType(detection, obfuscation.FamilyVMProtection) {
		r.stubVMComponents(ctx, detection.VMFeatures)
	}
	if d.model != nil {
		r.modelCleanup(ctx)
	}

	conf := confidence(r.records, detection)
	logging.Deob("pipeline finished: %d passes, confidence %.2f", len(r.records), conf)
	return &Result{
		Source:          r.source,
		Transformations: r.records,
		Confidence:      conf,
		Detection:       detection,
	}
}

func hasType(det *obfuscation.Result, family string) bool {
	for _, t := range det.Types {
		if t == family {
			return true
		}
	}
	return false
}

// Per-pass confidence weights. Warnings (failed passes) subtract.
var passWeights = map[string]float64{
	"extract-string-arrays": 0.10,
	"basic-ast-transform":   0.10,
	"decode-strings":        0.08,
	"decrypt-arrays":        0.12,
	"remove-array-rotation": 0.05,
	"unflatten":             0.10,
	"simplify":              0.05,
	"rename-identifiers":    0.05,
	"vm-stub":               0.05,
	"model-cleanup":         0.08,
}

const (
	confidenceBase    = 0.30
	confidenceFloor   = 0.10
	confidenceCeiling = 0.95
	vmOnlyCeiling     = 0.60
	warningPenalty    = 0.05
	familyBonus       = 0.10
)

// confidence sums success weights, subtracts warnings, applies the
// recognized-family bonus and bounds the result. A verdict that is
// VM-protection alone lowers the ceiling: stubbing is not lifting.
func confidence(records []Transformation, det *obfuscation.Result) float64 {
	c := confidenceBase
	for _, rec := range records {
		if rec.Success && rec.Count > 0 {
			c += passWeights[rec.Kind]
		} else if !rec.Success {
			c -= warningPenalty
		}
	}

	recognized := false
	for _, t := range det.Types {
		if t != obfuscation.FamilyUnknown {
			recognized = true
			break
		}
	}
	if recognized {
		c += familyBonus
	}

	ceiling := confidenceCeiling
	if len(det.Types) == 1 && det.Types[0] == obfuscation.FamilyVMProtection {
		ceiling = vmOnlyCeiling
	}
	if c > ceiling {
		c = ceiling
	}
	if c < confidenceFloor {
		c = confidenceFloor
	}
	return c
}
