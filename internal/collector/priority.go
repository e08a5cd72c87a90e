package collector

import (
	"strings"

	"jsrecon/internal/types"
)

// priorityKeywords boost scripts whose URL suggests application logic
// worth reading first.
var priorityKeywords = []string{
	"core", "main", "index", "app", "crypto", "encrypt", "sign", "api", "auth", "token",
}

// vendorMarkers penalize third-party bundles and tracking noise.
var vendorMarkers = []string{
	"vendor", "node_modules", "jquery", "polyfill", "gtag", "analytics", "tracker", "ads", "chunk-vendors",
}

// priorityScore is additive: kind base, size bracket, URL keyword hits
// and vendor penalties. Callers break ties by insertion order.
func priorityScore(f types.ScriptFile, extraKeywords []string) int {
	score := 0

	switch f.Kind {
	case types.ScriptInline:
		score += 20 // inline code is page-specific by construction
	case types.ScriptServiceWorker, types.ScriptWebWorker:
		score += 15
	case types.ScriptExternal:
		score += 10
	}

	switch {
	case f.Size >= 10*1024 && f.Size < 512*1024:
		score += 10 // the interesting middle: real logic, not a stub
	case f.Size >= 1024 && f.Size < 10*1024:
		score += 5
	case f.Size >= 2*1024*1024:
		score -= 5
	}

	lower := strings.ToLower(f.URL)
	for _, kw := range priorityKeywords {
		if strings.Contains(lower, kw) {
			score += 8
		}
	}
	for _, kw := range extraKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			score += 12
		}
	}
	for _, marker := range vendorMarkers {
		if strings.Contains(lower, marker) {
			score -= 15
		}
	}
	return score
}
