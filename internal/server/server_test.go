package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"jsrecon/internal/config"
	"jsrecon/internal/rerr"
)

func TestMain(m *testing.M) {
	// The detail-token sweeper is stopped by Shutdown; rod and mcp
	// background goroutines never start in these tests.
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Cache.Dir = t.TempDir()
	cfg.Debugger.SessionDir = t.TempDir()
	s, err := New(cfg, "test")
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func callReq(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestWrapRecordsBudgetAndShapesSuccess(t *testing.T) {
	s := newTestServer(t)
	h := s.wrap("unit_tool", func(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
		return map[string]interface{}{"value": 42}, nil
	})

	res, err := h(context.Background(), callReq(nil))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, float64(42), out["value"])

	snap := s.ledger.Snapshot()
	assert.Equal(t, 1, snap.ToolCallCount)
	assert.Equal(t, "unit_tool", snap.TopTools[0].ToolName)
}

func TestWrapShapesFailureWithHint(t *testing.T) {
	s := newTestServer(t)
	h := s.wrap("unit_tool", func(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
		return nil, rerr.New(rerr.KindNavigation, "navigation refused").WithHint("check the URL")
	})

	res, err := h(context.Background(), callReq(nil))
	require.NoError(t, err, "tool failures are results, not protocol errors")
	out := decodeResult(t, res)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "navigation refused")
	assert.Equal(t, "check the URL", out["hint"])
	assert.Equal(t, string(rerr.KindNavigation), out["kind"])
}

func TestWrapSmartHandlesOversizedResults(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Budget.DetailMaxKB = 1 // 1KB threshold

	big := strings.Repeat("payload ", 1000)
	h := s.wrap("big_tool", func(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
		return map[string]interface{}{"dump": big}, nil
	})

	res, err := h(context.Background(), callReq(nil))
	require.NoError(t, err)
	out := decodeResult(t, res)
	detailID, hasToken := out["detailId"].(string)
	require.True(t, hasToken, "oversized result must be replaced by a detail token")

	// Round trip through the detail store: the original value returns.
	stored, err := s.details.Retrieve(detailID, "dump")
	require.NoError(t, err)
	assert.Equal(t, big, stored)
}

func TestGetDetailedDataSkipsReSmartHandling(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Budget.DetailMaxKB = 1

	big := strings.Repeat("x", 4096)
	id := s.details.Store(big)

	h := s.wrapRaw("get_detailed_data", s.handleGetDetailedData)
	res, err := h(context.Background(), callReq(map[string]interface{}{"detailId": id}))
	require.NoError(t, err)
	text, okText := mcp.AsTextContent(res.Content[0])
	require.True(t, okText)
	assert.Contains(t, text.Text, big, "raw value comes back, not another token")
}

func TestGetDetailedDataUnknownToken(t *testing.T) {
	s := newTestServer(t)
	h := s.wrapRaw("get_detailed_data", s.handleGetDetailedData)

	res, err := h(context.Background(), callReq(map[string]interface{}{"detailId": "detail_unknown"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, string(rerr.KindDetailTokenInvalid), out["kind"])
}

func TestResolveSourcePrefersInline(t *testing.T) {
	s := newTestServer(t)

	src, err := s.resolveSource(callReq(map[string]interface{}{"source": "var a = 1;"}))
	require.NoError(t, err)
	assert.Equal(t, "var a = 1;", src)

	_, err = s.resolveSource(callReq(nil))
	require.Error(t, err)
	assert.NotEmpty(t, rerr.HintOf(err))
}

func TestAnalysisToolsRunWithoutBrowser(t *testing.T) {
	s := newTestServer(t)

	h := s.wrap("deobfuscate_code", s.handleDeobfuscate)
	res, err := h(context.Background(), callReq(map[string]interface{}{
		"source": `var _0xabcd=['hello','world'];console[_0xabcd[0]](_0xabcd[1]);`,
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Contains(t, out["source"], "'hello'")
	assert.GreaterOrEqual(t, out["confidence"].(float64), 0.5)

	h = s.wrap("taint_analyze", s.handleTaintAnalyze)
	res, err = h(context.Background(), callReq(map[string]interface{}{
		"source": "const u = location.hash;\neval(u);",
	}))
	require.NoError(t, err)
	out = decodeResult(t, res)
	paths := out["taintPaths"].([]interface{})
	assert.Len(t, paths, 1)
}

func TestArgHelpers(t *testing.T) {
	req := callReq(map[string]interface{}{
		"n":    float64(7),
		"list": []interface{}{"a", "b", 3},
	})
	assert.Equal(t, 7, argInt(req, "n", 1))
	assert.Equal(t, 1, argInt(req, "missing", 1))
	assert.Equal(t, []string{"a", "b"}, argStrings(req, "list"))
	assert.Nil(t, argStrings(req, "missing"))
}

func TestWrapExpression(t *testing.T) {
	assert.Equal(t, "() => (1 + 2)", wrapExpression("1 + 2"))
	assert.Equal(t, "() => document.title", wrapExpression("() => document.title"))
	assert.Equal(t, "function f() {}", wrapExpression("function f() {}"))
}

func TestSessionPathRejectsTraversal(t *testing.T) {
	s := newTestServer(t)
	_, err := s.sessionPath("../etc/passwd")
	assert.Error(t, err)
	_, err = s.sessionPath("good-name")
	assert.NoError(t, err)
}

func TestRingAppend(t *testing.T) {
	var buf []int
	for i := 0; i < 10; i++ {
		buf = ringAppend(buf, i, 4)
	}
	assert.Equal(t, []int{6, 7, 8, 9}, buf)
}
