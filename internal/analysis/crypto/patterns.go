// Package crypto recognizes cryptographic, signature, token and
// anti-debug patterns in collected traffic and console logs. The
// rule-based passes run without a model; an optional model-enhanced
// pass appends findings over the same dedupe key.
package crypto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"jsrecon/internal/logging"
	"jsrecon/internal/model"
	"jsrecon/internal/types"
)

// Finding types.
const (
	TypeEncryption = "encryption"
	TypeSignature  = "signature"
	TypeToken      = "token"
	TypeAntiDebug  = "anti-debug"
)

// Finding is one recognized pattern.
type Finding struct {
	Type       string   `json:"type"`
	Name       string   `json:"name"`     // algorithm family or classification
	Location   string   `json:"location"` // request URL or log position
	Confidence float64  `json:"confidence"`
	Evidence   string   `json:"evidence,omitempty"`
	Parameters []string `json:"parameters,omitempty"` // co-occurring keys for signatures
}

// Result is the engine output.
type Result struct {
	Findings []Finding `json:"findings"`
}

// encryptionFamilies maps family names to their keyword tables. URL and
// post-body matches use these; log matches get a confidence bump.
var encryptionFamilies = map[string][]string{
	"AES":    {"aes", "cbc", "ecb", "gcm", "cryptojs.aes"},
	"RSA":    {"rsa", "publickey", "modulus", "jsencrypt"},
	"MD5":    {"md5"},
	"SHA":    {"sha1", "sha256", "sha512", "sha-1", "sha-256"},
	"Base64": {"base64", "atob", "btoa"},
}

// signatureKeywords name parameters/headers that carry a signature.
var signatureKeywords = []string{"sign", "signature", "sig", "x-sign", "x-signature"}

// tokenKeywords name parameters/headers that carry a token.
var tokenKeywords = []string{"token", "access_token", "auth", "authorization", "x-token", "session", "jwt", "bearer"}

// excludedSignatureParams never count as signature inputs: the
// signature itself, JSONP plumbing and cache busters.
var excludedSignatureParams = map[string]bool{
	"callback":  true,
	"t":         true,
	"timestamp": true,
	"nonce":     true,
	"_":         true,
}

var (
	hex64Re     = regexp.MustCompile(`^[0-9a-f]{64}$`)
	jwtRe       = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)
	base64ishRe = regexp.MustCompile(`^[A-Za-z0-9+/_-]{20,}={0,2}$`)
)

// antiDebugPatterns match log lines betraying debugger countermeasures.
var antiDebugPatterns = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`\bdebugger\b`), "debugger-statement"},
	{regexp.MustCompile(`(?i)devtools?\s*(is)?\s*(open|detect)`), "devtools-detection"},
	{regexp.MustCompile(`(?i)console\s*(disabled|cleared)`), "console-tampering"},
	{regexp.MustCompile(`(?i)timing\s*(check|attack|anomaly)`), "timing-check"},
}

// Engine is stateless across calls apart from its rule tables.
type Engine struct {
	model model.Client // nil disables the model pass
}

// New creates an engine. mdl may be nil.
func New(mdl model.Client) *Engine {
	return &Engine{model: mdl}
}

// Analyze runs every rule-based pass over requests and logs, then the
// optional model pass. Findings are deduped by (type, location).
func (e *Engine) Analyze(ctx context.Context, requests []types.CollectedRequest, logs []types.ConsoleLog) *Result {
	timer := logging.StartTimer(logging.CategoryAnalysis, "crypto.Analyze")
	defer timer.Stop()

	seen := make(map[string]bool)
	res := &Result{}
	add := func(f Finding) {
		key := f.Type + "|" + f.Location
		if seen[key] {
			return
		}
		seen[key] = true
		res.Findings = append(res.Findings, f)
	}

	for i := range requests {
		e.scanEncryption(&requests[i], add)
		e.scanSignature(&requests[i], add)
		e.scanTokens(&requests[i], add)
	}
	for i := range logs {
		e.scanLogEncryption(&logs[i], add)
		e.scanAntiDebug(&logs[i], add)
	}

	if e.model != nil {
		e.enhanceWithModel(ctx, requests, seen, res)
	}
	logging.Analysis("crypto engine: %d findings", len(res.Findings))
	return res
}

// AnalyzeRequests is the request-only entry point.
func (e *Engine) AnalyzeRequests(ctx context.Context, requests []types.CollectedRequest) *Result {
	return e.Analyze(ctx, requests, nil)
}

// AnalyzeLogs is the log-only entry point.
func (e *Engine) AnalyzeLogs(ctx context.Context, logs []types.ConsoleLog) *Result {
	return e.Analyze(ctx, nil, logs)
}

func (e *Engine) scanEncryption(req *types.CollectedRequest, add func(Finding)) {
	haystack := strings.ToLower(req.URL + " " + req.PostData)
	for family, keywords := range encryptionFamilies {
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				add(Finding{
					Type:       TypeEncryption,
					Name:       family,
					Location:   req.URL,
					Confidence: 0.6,
					Evidence:   kw,
				})
				break
			}
		}
	}
}

func (e *Engine) scanLogEncryption(log *types.ConsoleLog, add func(Finding)) {
	haystack := strings.ToLower(log.Text)
	for family, keywords := range encryptionFamilies {
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				// Logs naming an algorithm are stronger evidence than a
				// URL substring.
				add(Finding{
					Type:       TypeEncryption,
					Name:       family,
					Location:   logLocation(log),
					Confidence: 0.8,
					Evidence:   kw,
				})
				break
			}
		}
	}
}

// scanSignature looks for signature keys in URL parameters, headers and
// JSON bodies, classifying by value shape and recording co-occurring
// parameter names as the likely signature inputs.
func (e *Engine) scanSignature(req *types.CollectedRequest, add func(Finding)) {
	check := func(key, value string, peers []string) {
		lower := strings.ToLower(key)
		matched := false
		for _, kw := range signatureKeywords {
			if lower == kw || strings.HasSuffix(lower, "_"+kw) || strings.HasSuffix(lower, "-"+kw) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}

		name, conf := classifySignature(value)
		params := make([]string, 0, len(peers))
		for _, p := range peers {
			if p == key || excludedSignatureParams[strings.ToLower(p)] || strings.HasPrefix(p, "_") {
				continue
			}
			params = append(params, p)
		}
		add(Finding{
			Type:       TypeSignature,
			Name:       name,
			Location:   req.URL,
			Confidence: conf,
			Evidence:   key,
			Parameters: params,
		})
	}

	if u, err := url.Parse(req.URL); err == nil {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		for k := range q {
			check(k, q.Get(k), keys)
		}
	}

	headerKeys := make([]string, 0, len(req.Headers))
	for k := range req.Headers {
		headerKeys = append(headerKeys, k)
	}
	for k, v := range req.Headers {
		check(k, v, headerKeys)
	}

	if strings.HasPrefix(strings.TrimSpace(req.PostData), "{") {
		var body map[string]interface{}
		if err := json.Unmarshal([]byte(req.PostData), &body); err == nil {
			keys := make([]string, 0, len(body))
			for k := range body {
				keys = append(keys, k)
			}
			for k, v := range body {
				if s, ok := v.(string); ok {
					check(k, s, keys)
				}
			}
		}
	}
}

// classifySignature infers the algorithm from the value shape.
func classifySignature(value string) (string, float64) {
	switch {
	case hex64Re.MatchString(value):
		return "HMAC-SHA256", 0.85
	case jwtRe.MatchString(value) && strings.Count(value, ".") == 2:
		return "JWT", 0.9
	default:
		return "custom", 0.5
	}
}

// scanTokens matches header names and URL parameters against the token
// keyword set and classifies the value shape.
func (e *Engine) scanTokens(req *types.CollectedRequest, add func(Finding)) {
	check := func(key, value string) {
		lower := strings.ToLower(key)
		matched := false
		for _, kw := range tokenKeywords {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
		if !matched || value == "" {
			return
		}

		var name string
		var conf float64
		switch {
		case jwtRe.MatchString(value):
			name, conf = "JWT", 0.9
		case strings.HasPrefix(value, "Bearer "):
			name, conf = "bearer", 0.85
		case len(value) > 20 && base64ishRe.MatchString(value):
			name, conf = "custom", 0.6
		default:
			return
		}
		add(Finding{
			Type:       TypeToken,
			Name:       name,
			Location:   req.URL,
			Confidence: conf,
			Evidence:   key,
		})
	}

	for k, v := range req.Headers {
		check(k, v)
	}
	if u, err := url.Parse(req.URL); err == nil {
		for k := range u.Query() {
			check(k, u.Query().Get(k))
		}
	}
}

func (e *Engine) scanAntiDebug(log *types.ConsoleLog, add func(Finding)) {
	for _, p := range antiDebugPatterns {
		if p.re.MatchString(log.Text) {
			add(Finding{
				Type:       TypeAntiDebug,
				Name:       p.name,
				Location:   logLocation(log),
				Confidence: 0.7,
				Evidence:   truncate(log.Text, 120),
			})
		}
	}
}

func logLocation(log *types.ConsoleLog) string {
	if log.URL != "" {
		return fmt.Sprintf("%s:%d", log.URL, log.Line)
	}
	return fmt.Sprintf("console:%d", log.Line)
}

// enhanceWithModel sends a compact traffic digest and merges any
// additional findings under the same dedupe key.
func (e *Engine) enhanceWithModel(ctx context.Context, requests []types.CollectedRequest, seen map[string]bool, res *Result) {
	const maxDigest = 50
	var b strings.Builder
	b.WriteString("Identify cryptographic signing, encryption or token schemes in this HTTP traffic. ")
	b.WriteString(`Reply with only a JSON array of {"type":"encryption|signature|token","name":"...","location":"<url>","confidence":0.0}.` + "\n\n")
	for i, req := range requests {
		if i >= maxDigest {
			break
		}
		fmt.Fprintf(&b, "%s %s\n", req.Method, req.URL)
		if req.PostData != "" {
			fmt.Fprintf(&b, "  body: %s\n", truncate(req.PostData, 200))
		}
	}

	resp, err := e.model.Chat(ctx, []model.Message{
		{Role: "system", Content: "You are a traffic-analysis assistant for reverse engineering."},
		{Role: "user", Content: b.String()},
	}, model.ChatOptions{Temperature: 0})
	if err != nil {
		logging.AnalysisDebug("crypto model pass skipped: %v", err)
		return
	}

	var extra []Finding
	content := strings.TrimSpace(resp.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "`\n ")
	if err := json.Unmarshal([]byte(content), &extra); err != nil {
		return
	}
	for _, f := range extra {
		key := f.Type + "|" + f.Location
		if seen[key] || f.Type == "" || f.Location == "" {
			continue
		}
		seen[key] = true
		res.Findings = append(res.Findings, f)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
