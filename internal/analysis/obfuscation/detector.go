// Package obfuscation classifies JavaScript across the known
// obfuscation families using regex and structural heuristics. Each
// family has one rule and a fixed confidence; the VM family requires
// co-occurring patterns and additionally reports interpreter features
// extracted from the syntax tree.
package obfuscation

import (
	"regexp"
	"strings"

	"jsrecon/internal/logging"
)

// Family names are stable; the dispatcher and the deobfuscator route
// on them.
const (
	FamilyStringArray         = "string-array"
	FamilyStringArrayRotation = "string-array-rotation"
	FamilyStringArrayEncoding = "string-array-encoding"
	FamilyHexIdentifiers      = "hex-identifiers"
	FamilyUnicodeEscapes      = "unicode-escapes"
	FamilyHexEscapes          = "hex-escapes"
	FamilyControlFlow         = "control-flow-flattening"
	FamilyDeadCode            = "dead-code-injection"
	FamilyOpaquePredicates    = "opaque-predicates"
	FamilyEvalChain           = "eval-chain"
	FamilyPacker              = "packer"
	FamilyBase64Blobs         = "base64-blobs"
	FamilyVMProtection        = "vm-protection"
	FamilyDebuggerTraps       = "debugger-traps"
	FamilySelfDefending       = "self-defending"
	FamilyDomainLock          = "domain-lock"
	FamilyConsoleDisable      = "console-disable"
	FamilyTimingChecks        = "timing-checks"
	FamilyCharCodeConcealing  = "charcode-concealing"
	FamilyUnknown             = "unknown"
)

// VMFeatures describes a detected embedded interpreter.
type VMFeatures struct {
	InstructionCount    int    `json:"instructionCount"`
	InterpreterLocation string `json:"interpreterLocation"`
	Complexity          string `json:"complexity"` // low, medium, high
	HasSwitch           bool   `json:"hasSwitch"`
	HasInstructionArray bool   `json:"hasInstructionArray"`
	HasProgramCounter   bool   `json:"hasProgramCounter"`
}

// Result is the detector verdict.
type Result struct {
	Types           []string           `json:"types"`
	Confidence      map[string]float64 `json:"confidence"`
	Features        []string           `json:"features"`
	Recommendations []string           `json:"recommendations"`
	VMFeatures      *VMFeatures        `json:"vmFeatures,omitempty"`
}

// rule is one family's pattern set. When minMatches > 1 the family
// triggers only on co-occurring patterns.
type rule struct {
	family     string
	confidence float64
	patterns   []*regexp.Regexp
	minMatches int
	feature    string
	recommend  string
}

var rules = []rule{
	{
		family:     FamilyStringArray,
		confidence: 0.9,
		patterns:   []*regexp.Regexp{regexp.MustCompile(`(?:var|const|let)\s+_0x[0-9a-fA-F]+\s*=\s*\[`)},
		minMatches: 1,
		feature:    "mangled array declaration (_0x prefix)",
		recommend:  "run the deobfuscator; string arrays decode automatically",
	},
	{
		family:     FamilyStringArrayRotation,
		confidence: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\(\s*function\s*\([^)]*\)\s*\{[^}]*while\s*\(\s*!!\s*\[\s*\]\s*\)`),
			regexp.MustCompile(`\.push\s*\(\s*\w+\.shift\s*\(\s*\)\s*\)`),
		},
		minMatches: 1,
		feature:    "rotation IIFE performing push/shift on a string array",
		recommend:  "the rotation wrapper is removable once the array is extracted",
	},
	{
		family:     FamilyStringArrayEncoding,
		confidence: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`atob\s*\(`),
			regexp.MustCompile(`fromCharCode[\s\S]{0,40}charCodeAt`),
		},
		minMatches: 1,
		feature:    "decoder function over an encoded string table",
	},
	{
		family:     FamilyHexIdentifiers,
		confidence: 0.7,
		patterns:   []*regexp.Regexp{regexp.MustCompile(`_0x[0-9a-fA-F]{4,}`)},
		minMatches: 1,
		feature:    "hex-mangled identifiers",
		recommend:  "request variable renaming for readable placeholders",
	},
	{
		family:     FamilyUnicodeEscapes,
		confidence: 0.6,
		patterns:   []*regexp.Regexp{regexp.MustCompile(`(?:\\u[0-9a-fA-F]{4}){4,}`)},
		minMatches: 1,
		feature:    "dense \\uHHHH escape sequences",
	},
	{
		family:     FamilyHexEscapes,
		confidence: 0.6,
		patterns:   []*regexp.Regexp{regexp.MustCompile(`(?:\\x[0-9a-fA-F]{2}){3,}`)},
		minMatches: 1,
		feature:    "dense \\xHH escape sequences",
	},
	{
		family:     FamilyControlFlow,
		confidence: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`while\s*\(\s*(?:!!\s*\[\s*\]|true)\s*\)\s*\{\s*switch`),
			regexp.MustCompile(`switch\s*\(\s*\w+\[\w+\+\+\]\s*\)`),
		},
		minMatches: 1,
		feature:    "state-machine loop (while-true over switch)",
		recommend:  "control-flow unflattening needs the aggressive pipeline mode",
	},
	{
		family:     FamilyOpaquePredicates,
		confidence: 0.65,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`!!\s*\[\s*\]`),
			regexp.MustCompile(`!\s*\[\s*\]`),
		},
		minMatches: 1,
		feature:    "array-coercion opaque predicates (!![] / ![])",
	},
	{
		family:     FamilyDeadCode,
		confidence: 0.6,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`if\s*\(\s*(?:false|0)\s*\)`),
			regexp.MustCompile(`if\s*\(\s*(?:'\w+'|"\w+")\s*[!=]==\s*(?:'\w+'|"\w+")\s*\)`),
		},
		minMatches: 1,
		feature:    "constant-condition branches",
	},
	{
		family:     FamilyEvalChain,
		confidence: 0.8,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`eval\s*\(\s*function`),
			regexp.MustCompile(`eval\s*\(\s*atob`),
			regexp.MustCompile(`new\s+Function\s*\(`),
		},
		minMatches: 1,
		feature:    "dynamic code construction via eval/Function",
	},
	{
		family:     FamilyPacker,
		confidence: 0.9,
		patterns:   []*regexp.Regexp{regexp.MustCompile(`function\s*\(\s*p\s*,\s*a\s*,\s*c\s*,\s*k\s*,\s*e\s*,\s*[dr]\s*\)`)},
		minMatches: 1,
		feature:    "Dean Edwards p,a,c,k,e,d packer signature",
	},
	{
		family:     FamilyBase64Blobs,
		confidence: 0.55,
		patterns:   []*regexp.Regexp{regexp.MustCompile(`['"][A-Za-z0-9+/]{120,}={0,2}['"]`)},
		minMatches: 1,
		feature:    "long base64 payload literals",
	},
	{
		family:     FamilyVMProtection,
		confidence: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`switch\s*\(`),
			regexp.MustCompile(`\[\s*(?:\d+\s*,\s*){32,}`),
			regexp.MustCompile(`parseInt\s*\(\s*\w+(?:\[\w+\])?\s*,\s*16\s*\)`),
			regexp.MustCompile(`\w+\s*\[\s*\w+\s*\+\+\s*\]`),
		},
		minMatches: 2, // a switch alone is not a VM
		feature:    "bytecode array plus dispatch loop",
		recommend:  "VM protection usually needs model-assisted lifting; expect partial results",
	},
	{
		family:     FamilyDebuggerTraps,
		confidence: 0.75,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bdebugger\b`),
			regexp.MustCompile(`constructor\s*\(\s*["']debugger["']\s*\)`),
		},
		minMatches: 1,
		feature:    "debugger statements or constructor traps",
		recommend:  "use debugger_set_breakpoint_on_exception and blackboxing to step past traps",
	},
	{
		family:     FamilySelfDefending,
		confidence: 0.7,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\.toString\s*\(\s*\)[\s\S]{0,60}(?:RegExp|replace)\s*\(`),
			regexp.MustCompile(`Function\s*\(\s*["']return[\s\S]{0,30}this`),
		},
		minMatches: 1,
		feature:    "source-inspection self-defense (toString checks)",
	},
	{
		family:     FamilyDomainLock,
		confidence: 0.7,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`location\s*\.\s*host(?:name)?\s*[!=]==?`),
			regexp.MustCompile(`document\s*\.\s*domain\s*[!=]==?`),
		},
		minMatches: 1,
		feature:    "hostname comparison gating execution",
	},
	{
		family:     FamilyConsoleDisable,
		confidence: 0.65,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`console\s*\[\s*\w+\s*\]\s*=\s*function\s*\(\s*\)\s*\{\s*\}`),
			regexp.MustCompile(`console\.(?:log|warn|error|info|debug)\s*=`),
		},
		minMatches: 1,
		feature:    "console methods overwritten",
	},
	{
		family:     FamilyTimingChecks,
		confidence: 0.6,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:Date\.now|performance\.now)\s*\(\s*\)[\s\S]{0,80}(?:Date\.now|performance\.now)\s*\(\s*\)`),
		},
		minMatches: 1,
		feature:    "elapsed-time checks between nearby timestamps",
	},
	{
		family:     FamilyCharCodeConcealing,
		confidence: 0.6,
		patterns:   []*regexp.Regexp{regexp.MustCompile(`String\.fromCharCode\s*\(\s*\d+\s*(?:,\s*\d+\s*){2,}\)`)},
		minMatches: 1,
		feature:    "strings assembled from character codes",
	},
}

// Detect classifies source. When no family triggers the verdict is
// {unknown, 0.5}.
func Detect(source string) *Result {
	timer := logging.StartTimer(logging.CategoryAnalysis, "obfuscation.Detect")
	defer timer.Stop()

	res := &Result{Confidence: make(map[string]float64)}

	for _, r := range rules {
		matches := 0
		for _, p := range r.patterns {
			if p.MatchString(source) {
				matches++
			}
		}
		if matches >= r.minMatches {
			res.Types = append(res.Types, r.family)
			res.Confidence[r.family] = r.confidence
			if r.feature != "" {
				res.Features = append(res.Features, r.feature)
			}
			if r.recommend != "" {
				res.Recommendations = append(res.Recommendations, r.recommend)
			}
		}
	}

	if hasFamily(res, FamilyVMProtection) {
		res.VMFeatures = scanVMFeatures(source)
	}

	if len(res.Types) == 0 {
		res.Types = []string{FamilyUnknown}
		res.Confidence[FamilyUnknown] = 0.5
		if looksMinified(source) {
			res.Features = append(res.Features, "minified but no known obfuscation family")
		}
	}

	logging.AnalysisDebug("detected families: %s", strings.Join(res.Types, ", "))
	return res
}

func hasFamily(r *Result, family string) bool {
	for _, t := range r.Types {
		if t == family {
			return true
		}
	}
	return false
}

func looksMinified(source string) bool {
	lines := strings.Count(source, "\n") + 1
	return len(source) > 2000 && len(source)/lines > 400
}
