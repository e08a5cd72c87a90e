package collector

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsrecon/internal/cache"
	"jsrecon/internal/compress"
	"jsrecon/internal/config"
	"jsrecon/internal/types"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	cacheCfg := config.DefaultCacheConfig()
	cacheCfg.Dir = t.TempDir()
	store, err := cache.New(cacheCfg)
	require.NoError(t, err)
	comp, err := compress.New(config.DefaultCompressConfig())
	require.NoError(t, err)
	return New(config.DefaultCollectorConfig(), config.DefaultBrowserConfig(), store, comp)
}

func seedFiles(c *Collector, url string, files []types.ScriptFile) {
	total := 0
	for _, f := range files {
		total += f.Size
	}
	c.storeBuffer(url, files, total)
}

func script(url string, size int, kind types.ScriptKind) types.ScriptFile {
	return types.ScriptFile{
		ID:     url,
		URL:    url,
		Kind:   kind,
		Source: strings.Repeat("x", size),
		Size:   size,
	}
}

func TestSummaryAndLookup(t *testing.T) {
	c := newTestCollector(t)
	seedFiles(c, "https://a.test", []types.ScriptFile{
		script("https://a.test/main.js", 100, types.ScriptExternal),
		script("inline-script-1", 50, types.ScriptInline),
	})

	sum := c.GetCollectedFilesSummary()
	require.Len(t, sum, 2)
	assert.Equal(t, "https://a.test/main.js", sum[0].URL)

	f := c.GetFileByURL("inline-script-1")
	require.NotNil(t, f)
	assert.Equal(t, types.ScriptInline, f.Kind)
	assert.Nil(t, c.GetFileByURL("https://nope.test/x.js"))
}

func TestGetFilesByPatternCounters(t *testing.T) {
	c := newTestCollector(t)
	var files []types.ScriptFile
	for i := 0; i < 20; i++ {
		files = append(files, script(fmt.Sprintf("https://a.test/vendor/lib%d.js", i), 10*1024, types.ScriptExternal))
	}
	files = append(files, script("https://a.test/app.js", 1024, types.ScriptExternal))
	seedFiles(c, "https://a.test", files)

	res, err := c.GetFilesByPattern(".*vendor.*", 10, 512*1024)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Matched)
	assert.Equal(t, 10, res.Returned)
	assert.True(t, res.Truncated)
	assert.GreaterOrEqual(t, res.Matched, res.Returned)

	total := 0
	for _, f := range res.Files {
		total += f.Size
	}
	assert.LessOrEqual(t, total, 512*1024)
}

func TestGetFilesByPatternSizeBudgetStopsAtFirstOverflow(t *testing.T) {
	c := newTestCollector(t)
	seedFiles(c, "https://a.test", []types.ScriptFile{
		script("https://a.test/one.js", 30, types.ScriptExternal),
		script("https://a.test/two.js", 100, types.ScriptExternal),
		script("https://a.test/three.js", 10, types.ScriptExternal),
	})

	res, err := c.GetFilesByPattern(".*\\.js", 10, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Matched)
	assert.Equal(t, 1, res.Returned, "stop at the first file that would overflow")
	assert.True(t, res.Truncated)
}

func TestGetFilesByPatternNoMatches(t *testing.T) {
	c := newTestCollector(t)
	seedFiles(c, "https://a.test", []types.ScriptFile{
		script("https://a.test/app.js", 10, types.ScriptExternal),
	})

	res, err := c.GetFilesByPattern("zzz-nothing", 10, 1024)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)
	assert.Equal(t, 0, res.Returned)
	assert.False(t, res.Truncated)
	assert.Empty(t, res.Files)
}

func TestGetFilesByPatternRejectsBadRegex(t *testing.T) {
	c := newTestCollector(t)
	_, err := c.GetFilesByPattern("([", 10, 1024)
	assert.Error(t, err)
}

func TestTopPriorityOrdering(t *testing.T) {
	c := newTestCollector(t)
	seedFiles(c, "https://a.test", []types.ScriptFile{
		script("https://a.test/vendor/jquery.js", 50*1024, types.ScriptExternal),
		script("https://a.test/crypto-sign.js", 50*1024, types.ScriptExternal),
		script("https://a.test/misc.js", 50*1024, types.ScriptExternal),
	})

	top := c.GetTopPriorityFiles(2, 512*1024)
	require.Len(t, top, 2)
	assert.Equal(t, "https://a.test/crypto-sign.js", top[0].URL, "crypto/sign keywords outrank")
	assert.NotEqual(t, "https://a.test/vendor/jquery.js", top[0].URL)
	assert.NotEqual(t, "https://a.test/vendor/jquery.js", top[1].URL)
}

func TestPriorityTieBreakByInsertionOrder(t *testing.T) {
	a := script("https://a.test/one.js", 20*1024, types.ScriptExternal)
	b := script("https://a.test/two.js", 20*1024, types.ScriptExternal)
	assert.Equal(t, priorityScore(a, nil), priorityScore(b, nil))

	c := newTestCollector(t)
	seedFiles(c, "https://a.test", []types.ScriptFile{a, b})
	top := c.GetTopPriorityFiles(2, 512*1024)
	require.Len(t, top, 2)
	assert.Equal(t, a.URL, top[0].URL)
}

func TestBufferEvictionAtMaxCollectedURLs(t *testing.T) {
	c := newTestCollector(t)
	c.cfg.MaxCollectedURLs = 3
	for i := 0; i < 5; i++ {
		seedFiles(c, fmt.Sprintf("https://site%d.test", i), []types.ScriptFile{
			script(fmt.Sprintf("https://site%d.test/app.js", i), 10, types.ScriptExternal),
		})
	}

	st := c.GetStatus()
	assert.Equal(t, 3, st.CollectedURLs)
	assert.Nil(t, c.GetFileByURL("https://site0.test/app.js"), "oldest buffer evicted")
	assert.NotNil(t, c.GetFileByURL("https://site4.test/app.js"))
}

func TestClearAllData(t *testing.T) {
	c := newTestCollector(t)
	seedFiles(c, "https://a.test", []types.ScriptFile{script("https://a.test/app.js", 10, types.ScriptExternal)})
	require.NoError(t, c.ClearAllData())

	st := c.GetStatus()
	assert.Zero(t, st.CollectedURLs)
	assert.Zero(t, st.TotalFiles)
}

func TestMakeScriptFileTruncation(t *testing.T) {
	body := strings.Repeat("a", 100)
	f := makeScriptFile("id", "https://a.test/big.js", types.ScriptExternal, body, 40)
	assert.True(t, f.Truncated)
	assert.Equal(t, 100, f.OriginalSize)
	assert.Equal(t, 40, f.Size)
	assert.Len(t, f.Source, 40)

	small := makeScriptFile("id", "u", types.ScriptInline, "short", 40)
	assert.False(t, small.Truncated)
	assert.Zero(t, small.OriginalSize)
}

func TestExtractDependencies(t *testing.T) {
	files := []types.ScriptFile{
		{Source: `import React from 'react'; import { x } from "./util.js";`},
		{Source: `const lodash = require('lodash'); import('./lazy.js').then(m => m);`},
	}
	deps := extractDependencies(files)
	assert.ElementsMatch(t, []string{"react", "./util.js", "lodash", "./lazy.js"}, deps)
}

func TestInlineScriptsFromHTML(t *testing.T) {
	doc := `<html><head>
	<script src="https://cdn.test/ext.js"></script>
	<script>var inline1 = 1;</script>
	</head><body><script> var inline2 = 2; </script><script>   </script></body></html>`

	scripts := inlineScriptsFromHTML(doc)
	require.Len(t, scripts, 2)
	assert.Contains(t, scripts[0], "inline1")
	assert.Contains(t, scripts[1], "inline2")
}

func TestIsScriptResponse(t *testing.T) {
	assert.True(t, isScriptResponse("application/javascript", "https://a.test/x"))
	assert.True(t, isScriptResponse("text/html", "https://a.test/app.js?v=2"))
	assert.True(t, isScriptResponse("", "https://a.test/mod.mjs"))
	assert.False(t, isScriptResponse("text/css", "https://a.test/style.css"))
}

func TestOptionsHashStable(t *testing.T) {
	a := Options{IncludeInline: true, MaxTotalSize: 100}
	b := Options{IncludeInline: true, MaxTotalSize: 100}
	assert.Equal(t, optionsHash(a), optionsHash(b))
	assert.NotEqual(t, optionsHash(a), optionsHash(Options{IncludeInline: false, MaxTotalSize: 100}))
}
