package budget

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"jsrecon/internal/config"
)

func testLedger(maxTokens int) *Ledger {
	cfg := config.DefaultBudgetConfig()
	cfg.MaxTokens = maxTokens
	return NewLedger(cfg)
}

func TestRecordAndSnapshot(t *testing.T) {
	l := testLedger(1000)
	l.Record("get_all_scripts", 400)
	l.Record("page_evaluate", 800)

	snap := l.Snapshot()
	assert.Equal(t, int64(300), snap.CurrentUsage, "1200 bytes ~= 300 tokens")
	assert.Equal(t, 2, snap.ToolCallCount)
	assert.Equal(t, "page_evaluate", snap.TopTools[0].ToolName)
	assert.InDelta(t, 30.0, snap.UsagePercentage, 0.01)
}

func TestWarningsLatchOncePerThreshold(t *testing.T) {
	l := testLedger(100) // 100 tokens = 400 bytes

	l.Record("a", 210) // 52 tokens -> crosses 50%
	assert.Len(t, l.Snapshot().Warnings, 1)

	l.Record("a", 10) // still above 50%, below 75%
	assert.Len(t, l.Snapshot().Warnings, 1, "50% warning fires once")

	l.Record("a", 200) // crosses 75% and 90%
	assert.Len(t, l.Snapshot().Warnings, 3)
}

func TestTopToolsLimitedToFive(t *testing.T) {
	l := testLedger(0)
	for i := 0; i < 8; i++ {
		l.Record(fmt.Sprintf("tool_%d", i), (i+1)*100)
	}
	snap := l.Snapshot()
	assert.Len(t, snap.TopTools, 5)
	assert.Equal(t, "tool_7", snap.TopTools[0].ToolName, "descending by bytes")
}

func TestResetZeroesImmediately(t *testing.T) {
	l := testLedger(100)
	l.Record("a", 4000)
	assert.NotEmpty(t, l.Snapshot().Warnings)

	l.Reset()
	snap := l.Snapshot()
	assert.Zero(t, snap.CurrentUsage)
	assert.Zero(t, snap.ToolCallCount)
	assert.Empty(t, snap.Warnings)

	// Thresholds unlatch after reset.
	l.Record("a", 4000)
	assert.NotEmpty(t, l.Snapshot().Warnings)
}

func TestRecentCallsTail(t *testing.T) {
	l := testLedger(0)
	for i := 0; i < 25; i++ {
		l.Record("t", 10)
	}
	assert.Len(t, l.Snapshot().RecentCalls, 10)
}
