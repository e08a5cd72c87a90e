// Package budget tracks per-invocation response sizes against a
// session token budget, latching warnings at configured fractions and
// suggesting remediation to the calling agent.
package budget

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"jsrecon/internal/config"
	"jsrecon/internal/logging"
)

// bytesPerToken approximates the serialized-byte to model-token ratio.
const bytesPerToken = 4

// topToolsLimit bounds the descending-by-bytes tool list in a snapshot.
const topToolsLimit = 5

// recentCallsLimit bounds the recent-call tail in a snapshot.
const recentCallsLimit = 10

// Record is one tool call's accounting entry.
type Record struct {
	ToolName  string    `json:"toolName"`
	Bytes     int       `json:"bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolUsage is the per-tool roll-up.
type ToolUsage struct {
	ToolName string `json:"toolName"`
	Bytes    int64  `json:"bytes"`
	Calls    int    `json:"calls"`
}

// Snapshot is the ledger state returned to the agent.
type Snapshot struct {
	CurrentUsage    int64       `json:"currentUsage"` // Estimated tokens consumed
	MaxTokens       int         `json:"maxTokens"`
	UsagePercentage float64     `json:"usagePercentage"`
	ToolCallCount   int         `json:"toolCallCount"`
	TopTools        []ToolUsage `json:"topTools"`
	Warnings        []string    `json:"warnings"`
	RecentCalls     []Record    `json:"recentCalls"`
	Suggestions     []string    `json:"suggestions"`
}

// Ledger is the process-wide token-budget ledger.
type Ledger struct {
	cfg config.BudgetConfig

	mu       sync.Mutex
	records  []Record
	perTool  map[string]*ToolUsage
	total    int64 // bytes
	latched  map[float64]bool
	warnings []string

	recordedBytes prometheus.Counter
	callCount     prometheus.Counter
}

var (
	metricsOnce   sync.Once
	recordedBytes prometheus.Counter
	callCount     prometheus.Counter
)

func sharedMetrics() (prometheus.Counter, prometheus.Counter) {
	metricsOnce.Do(func() {
		recordedBytes = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jsrecon",
			Subsystem: "budget",
			Name:      "response_bytes_total",
			Help:      "Total tool-response bytes recorded by the ledger.",
		})
		callCount = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jsrecon",
			Subsystem: "budget",
			Name:      "tool_calls_total",
			Help:      "Total tool calls observed by the ledger.",
		})
		prometheus.DefaultRegisterer.MustRegister(recordedBytes, callCount)
	})
	return recordedBytes, callCount
}

// NewLedger creates a ledger from config.
func NewLedger(cfg config.BudgetConfig) *Ledger {
	rb, cc := sharedMetrics()
	return &Ledger{
		cfg:           cfg,
		perTool:       make(map[string]*ToolUsage),
		latched:       make(map[float64]bool),
		recordedBytes: rb,
		callCount:     cc,
	}
}

// Record accounts one tool response. Threshold warnings latch: each
// fires once per session until Reset.
func (l *Ledger) Record(toolName string, responseBytes int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, Record{
		ToolName:  toolName,
		Bytes:     responseBytes,
		Timestamp: time.Now(),
	})
	usage, ok := l.perTool[toolName]
	if !ok {
		usage = &ToolUsage{ToolName: toolName}
		l.perTool[toolName] = usage
	}
	usage.Bytes += int64(responseBytes)
	usage.Calls++
	l.total += int64(responseBytes)

	l.recordedBytes.Add(float64(responseBytes))
	l.callCount.Inc()

	if l.cfg.MaxTokens <= 0 {
		return
	}
	frac := float64(l.total/bytesPerToken) / float64(l.cfg.MaxTokens)
	for _, threshold := range l.cfg.WarnFractions {
		if frac >= threshold && !l.latched[threshold] {
			l.latched[threshold] = true
			msg := fmt.Sprintf("token budget %.0f%% consumed (%d of %d estimated tokens)",
				threshold*100, l.total/bytesPerToken, l.cfg.MaxTokens)
			l.warnings = append(l.warnings, msg)
			logging.Budget("%s", msg)
		}
	}
}

// Snapshot returns the current state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	tokens := l.total / bytesPerToken
	pct := 0.0
	if l.cfg.MaxTokens > 0 {
		pct = float64(tokens) / float64(l.cfg.MaxTokens) * 100
	}

	top := make([]ToolUsage, 0, len(l.perTool))
	for _, u := range l.perTool {
		top = append(top, *u)
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Bytes > top[j].Bytes })
	if len(top) > topToolsLimit {
		top = top[:topToolsLimit]
	}

	recent := l.records
	if len(recent) > recentCallsLimit {
		recent = recent[len(recent)-recentCallsLimit:]
	}
	recentCopy := make([]Record, len(recent))
	copy(recentCopy, recent)

	warnings := make([]string, len(l.warnings))
	copy(warnings, l.warnings)

	return Snapshot{
		CurrentUsage:    tokens,
		MaxTokens:       l.cfg.MaxTokens,
		UsagePercentage: pct,
		ToolCallCount:   len(l.records),
		TopTools:        top,
		Warnings:        warnings,
		RecentCalls:     recentCopy,
		Suggestions:     l.suggestionsLocked(top, pct),
	}
}

func (l *Ledger) suggestionsLocked(top []ToolUsage, pct float64) []string {
	var out []string
	if pct >= 75 {
		out = append(out, "budget is nearly exhausted; prefer summary modes and detail tokens over raw payloads")
	}
	if len(top) > 0 && top[0].Bytes > l.total/2 && len(l.perTool) > 1 {
		out = append(out, fmt.Sprintf("%s accounts for most of the usage; narrow its arguments (pattern, limit, maxTotalSize)", top[0].ToolName))
	}
	if pct >= 50 {
		out = append(out, "call manual_token_cleanup to drop aged records, or reset_token_budget to start over")
	}
	return out
}

// Cleanup drops records older than the configured window. Per-tool
// roll-ups and latched warnings are kept; only the raw tail shrinks.
func (l *Ledger) Cleanup() int {
	window, err := time.ParseDuration(l.cfg.WindowStr)
	if err != nil || window <= 0 {
		window = 30 * time.Minute
	}
	cutoff := time.Now().Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.records[:0]
	removed := 0
	for _, r := range l.records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		} else {
			removed++
		}
	}
	l.records = kept
	return removed
}

// Reset zeroes all counters and unlatches every warning threshold.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	l.perTool = make(map[string]*ToolUsage)
	l.total = 0
	l.latched = make(map[float64]bool)
	l.warnings = nil
}
