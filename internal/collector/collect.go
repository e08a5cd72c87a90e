package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"jsrecon/internal/compress"
	"jsrecon/internal/logging"
	"jsrecon/internal/rerr"
	"jsrecon/internal/types"
)

// scriptMIMEs are the response MIME types treated as JavaScript.
var scriptMIMEs = map[string]bool{
	"application/javascript":   true,
	"application/x-javascript": true,
	"text/javascript":          true,
	"module":                   true,
}

// pendingScript is a network-observed script awaiting its body.
type pendingScript struct {
	requestID proto.NetworkRequestID
	url       string
}

// Collect harvests scripts for url. The cache is consulted first; a
// fresh harvest drives a new page through navigation, pulls bodies up
// to the configured bounds and stores the outcome in both the cache
// and the per-URL buffer.
func (c *Collector) Collect(ctx context.Context, url string, opts Options) (*Result, error) {
	hash := optionsHash(opts)
	if data, ok := c.cache.Get(url, hash); ok {
		var cached Result
		if err := json.Unmarshal(data, &cached); err == nil {
			cached.FromCache = true
			logging.Collector("collect %s served from cache", url)
			return &cached, nil
		}
	}

	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	maxFiles, maxFileSize, maxTotal, timeout := c.effectiveBounds(opts)

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := c.newPage(ctx, "")
	if err != nil {
		return nil, err
	}
	page = page.Context(ctx)
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logging.CollectorWarn("page close: %v", cerr)
		}
	}()

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "Network.enable", err)
	}
	if err := (proto.RuntimeEnable{}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "Runtime.enable", err)
	}

	// Web-worker hook must be installed before any document runs.
	if opts.IncludeWebWorker {
		_, err := proto.PageAddScriptToEvaluateOnNewDocument{
			Source: workerHookScript,
		}.Call(page)
		if err != nil {
			logging.CollectorWarn("worker hook install failed: %v", err)
		}
	}

	// Subscribe before navigating so early responses are not missed.
	// The events goroutine stops when sessionCtx is cancelled, which
	// happens on every exit path.
	sessionCtx, detach := context.WithCancel(ctx)
	defer detach()

	var (
		evMu     sync.Mutex
		pending  []pendingScript
		dropped  int
		warnings []string
	)

	eventPage := page.Context(sessionCtx)
	go eventPage.EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			c.recordRequest(types.CollectedRequest{
				RequestID: string(ev.RequestID),
				URL:       ev.Request.URL,
				Method:    ev.Request.Method,
				PostData:  ev.Request.PostData,
				Headers:   flattenHeaders(ev.Request.Headers),
				Timestamp: time.Now(),
			})
		},
		func(ev *proto.NetworkResponseReceived) {
			c.noteResponse(string(ev.RequestID), ev.Response.Status, ev.Response.MIMEType)
			if !isScriptResponse(ev.Response.MIMEType, ev.Response.URL) {
				return
			}
			evMu.Lock()
			defer evMu.Unlock()
			if len(pending) >= maxFiles {
				dropped++ // Bound reached: a warning, never a failure.
				return
			}
			pending = append(pending, pendingScript{requestID: ev.RequestID, url: ev.Response.URL})
		},
	)()

	if err := page.Timeout(timeout).Navigate(url); err != nil {
		return nil, rerr.Wrap(rerr.KindNavigation, "navigate "+url, err).
			WithHint("check the URL is reachable from this host")
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		logging.CollectorWarn("wait load: %v", err)
	}
	waitIdle := page.Timeout(timeout).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
	waitIdle()
	if opts.IncludeDynamic {
		time.Sleep(c.cfg.DynamicWait())
	}

	// Event subscribers detach deterministically here, success or not.
	detach()

	evMu.Lock()
	if dropped > 0 {
		warnings = append(warnings,
			fmt.Sprintf("script count reached MAX_FILES_PER_COLLECT (%d); %d further scripts ignored", maxFiles, dropped))
	}
	scripts := make([]pendingScript, len(pending))
	copy(scripts, pending)
	evMu.Unlock()

	files := make([]types.ScriptFile, 0, len(scripts))
	totalSize := 0

	appendFile := func(f types.ScriptFile) bool {
		if len(files) >= maxFiles {
			return false
		}
		if maxTotal > 0 && totalSize+f.Size > maxTotal {
			warnings = append(warnings, fmt.Sprintf("total size bound %s reached", fmtBytes(maxTotal)))
			return false
		}
		files = append(files, f)
		totalSize += f.Size
		return true
	}

	// External bodies, in CDP emission order.
	for _, p := range scripts {
		body, err := proto.NetworkGetResponseBody{RequestID: p.requestID}.Call(page)
		if err != nil {
			// Per-file failures are logged and skipped.
			logging.CollectorDebug("body fetch failed for %s: %v", p.url, err)
			continue
		}
		f := makeScriptFile(string(p.requestID), p.url, types.ScriptExternal, body.Body, maxFileSize)
		if !appendFile(f) {
			break
		}
	}

	if opts.IncludeInline {
		c.collectInline(page, maxFileSize, appendFile)
	}
	if opts.IncludeServiceWorker {
		c.collectServiceWorkers(page, maxFileSize, appendFile)
	}
	if opts.IncludeWebWorker {
		c.collectWebWorkers(page, maxFileSize, appendFile)
	}

	// Post-processing pipeline: smart selection, compression,
	// dependency extraction.
	if opts.SmartMode != "" {
		files = c.smartSelect(files, opts)
	}
	if opts.Compress {
		files = c.compressFiles(files)
	}
	deps := extractDependencies(files)

	res := &Result{
		URL:          url,
		Files:        files,
		Dependencies: deps,
		TotalSize:    totalSize,
		CollectTime:  time.Since(start).Milliseconds(),
		Warnings:     warnings,
	}

	c.storeBuffer(url, files, totalSize)
	if data, err := json.Marshal(res); err == nil {
		if err := c.cache.Set(url, hash, data); err != nil {
			logging.CollectorWarn("cache store failed: %v", err)
		}
	}

	if opts.SmartMode == "summary" {
		res = summarizeResult(res)
	}
	logging.Collector("collected %d files (%s) from %s in %dms",
		len(files), fmtBytes(totalSize), url, res.CollectTime)
	return res, nil
}

// workerHookScript records Worker constructor URLs for later fetch.
const workerHookScript = `(() => {
	if (window.__jsreconWorkerUrls) return;
	window.__jsreconWorkerUrls = [];
	const NativeWorker = window.Worker;
	window.Worker = function(url, opts) {
		try { window.__jsreconWorkerUrls.push(String(url)); } catch (e) {}
		return new NativeWorker(url, opts);
	};
	window.Worker.prototype = NativeWorker.prototype;
})();`

// collectInline pulls <script> bodies from the DOM, with an HTML-parse
// fallback when page evaluation fails.
func (c *Collector) collectInline(page *rod.Page, maxFileSize int, appendFile func(types.ScriptFile) bool) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS: `() => Array.from(document.querySelectorAll('script:not([src])')).map(s => s.textContent || '')`,
		ByValue: true,
	})
	var bodies []string
	if err == nil && res != nil {
		raw, merr := res.Value.MarshalJSON()
		if merr == nil {
			_ = json.Unmarshal(raw, &bodies)
		}
	}
	if len(bodies) == 0 {
		html, herr := page.HTML()
		if herr != nil {
			logging.CollectorDebug("inline scripts unavailable: eval %v, html %v", err, herr)
			return
		}
		bodies = inlineScriptsFromHTML(html)
	}

	n := 0
	for _, body := range bodies {
		if strings.TrimSpace(body) == "" {
			continue
		}
		n++
		id := fmt.Sprintf("inline-script-%d", n)
		if !appendFile(makeScriptFile(id, id, types.ScriptInline, body, maxFileSize)) {
			return
		}
	}
}

// collectServiceWorkers fetches registered service-worker scripts in
// page context; it never re-navigates.
func (c *Collector) collectServiceWorkers(page *rod.Page, maxFileSize int, appendFile func(types.ScriptFile) bool) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS: `async () => {
			if (!navigator.serviceWorker) return [];
			const regs = await navigator.serviceWorker.getRegistrations();
			const out = [];
			for (const reg of regs) {
				const sw = reg.active || reg.waiting || reg.installing;
				if (!sw || !sw.scriptURL) continue;
				try {
					const body = await fetch(sw.scriptURL).then(r => r.text());
					out.push({ url: sw.scriptURL, body });
				} catch (e) {}
			}
			return out;
		}`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		logging.CollectorDebug("service worker enumeration failed: %v", err)
		return
	}
	appendFetched(res, types.ScriptServiceWorker, maxFileSize, appendFile)
}

// collectWebWorkers reads the hooked constructor's URL log and fetches
// each worker body in page context.
func (c *Collector) collectWebWorkers(page *rod.Page, maxFileSize int, appendFile func(types.ScriptFile) bool) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS: `async () => {
			const urls = window.__jsreconWorkerUrls || [];
			const out = [];
			for (const url of urls) {
				try {
					const body = await fetch(url).then(r => r.text());
					out.push({ url, body });
				} catch (e) {}
			}
			return out;
		}`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		logging.CollectorDebug("web worker fetch failed: %v", err)
		return
	}
	appendFetched(res, types.ScriptWebWorker, maxFileSize, appendFile)
}

func appendFetched(res *proto.RuntimeRemoteObject, kind types.ScriptKind, maxFileSize int, appendFile func(types.ScriptFile) bool) {
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return
	}
	var fetched []struct {
		URL  string `json:"url"`
		Body string `json:"body"`
	}
	if err := json.Unmarshal(raw, &fetched); err != nil {
		return
	}
	for _, f := range fetched {
		file := makeScriptFile(f.URL, f.URL, kind, f.Body, maxFileSize)
		if !appendFile(file) {
			return
		}
	}
}

// makeScriptFile truncates oversized bodies, carrying the original
// size in metadata.
func makeScriptFile(id, url string, kind types.ScriptKind, body string, maxFileSize int) types.ScriptFile {
	f := types.ScriptFile{
		ID:     id,
		URL:    url,
		Kind:   kind,
		Source: body,
		Size:   len(body),
	}
	if maxFileSize > 0 && len(body) > maxFileSize {
		f.Truncated = true
		f.OriginalSize = len(body)
		f.Source = body[:maxFileSize]
		f.Size = maxFileSize
	}
	return f
}

// compressFiles compresses large bodies and records the compression
// metadata (Compressed, CompressedSize) on each file; the source text
// itself is left in place.
func (c *Collector) compressFiles(files []types.ScriptFile) []types.ScriptFile {
	items := make([]compress.BatchItem, 0, len(files))
	idx := make([]int, 0, len(files))
	for i, f := range files {
		if c.comp.ShouldCompress(f.Source, 0) {
			items = append(items, compress.BatchItem{ID: f.ID, Text: f.Source})
			idx = append(idx, i)
		}
	}
	if len(items) == 0 {
		return files
	}
	results := c.comp.CompressBatch(items, compress.Options{}, nil)
	for j, r := range results {
		if r.Err != nil || r.Result == nil {
			continue
		}
		f := &files[idx[j]]
		f.Compressed = true
		f.CompressedSize = r.Result.CompressedSize
	}
	return files
}

func (c *Collector) recordRequest(req types.CollectedRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	const maxRequests = 2000
	if len(c.requests) >= maxRequests {
		return
	}
	c.requests = append(c.requests, req)
}

func (c *Collector) noteResponse(requestID string, status int, mime string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.requests) - 1; i >= 0; i-- {
		if c.requests[i].RequestID == requestID {
			c.requests[i].Status = status
			c.requests[i].MIME = mime
			return
		}
	}
}

func isScriptResponse(mime, url string) bool {
	if scriptMIMEs[strings.ToLower(mime)] {
		return true
	}
	trimmed := url
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.HasSuffix(trimmed, ".js") || strings.HasSuffix(trimmed, ".mjs")
}

func flattenHeaders(h proto.NetworkHeaders) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.String()
	}
	return out
}

// summarizeResult strips bodies for smart-mode summary responses.
func summarizeResult(res *Result) *Result {
	out := *res
	out.Files = make([]types.ScriptFile, len(res.Files))
	for i, f := range res.Files {
		f.Source = ""
		out.Files[i] = f
	}
	return &out
}
