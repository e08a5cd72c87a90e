// Package collector harvests JavaScript from live pages over CDP:
// external scripts from network traffic, inline scripts from the DOM,
// service-worker and web-worker bodies fetched in page context. The
// collector owns the browser instance, the two-tier cache and the
// compressor; everything else reaches them through its methods.
package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"jsrecon/internal/cache"
	"jsrecon/internal/compress"
	"jsrecon/internal/config"
	"jsrecon/internal/logging"
	"jsrecon/internal/rerr"
	"jsrecon/internal/types"
)

// Options tune one Collect call. Zero values take config defaults.
type Options struct {
	IncludeInline        bool     `json:"includeInline"`
	IncludeServiceWorker bool     `json:"includeServiceWorker"`
	IncludeWebWorker     bool     `json:"includeWebWorker"`
	IncludeDynamic       bool     `json:"includeDynamic"`
	SmartMode            string   `json:"smartMode,omitempty"` // "", "filter", "summary"
	Compress             bool     `json:"compress"`
	MaxTotalSize         int      `json:"maxTotalSize,omitempty"`
	MaxFileSize          int      `json:"maxFileSize,omitempty"`
	Priorities           []string `json:"priorities,omitempty"` // extra keyword boosts
	TimeoutMs            int      `json:"timeoutMs,omitempty"`
}

// Result is one collection outcome.
type Result struct {
	URL          string             `json:"url"`
	Files        []types.ScriptFile `json:"files"`
	Dependencies []string           `json:"dependencies,omitempty"`
	TotalSize    int                `json:"totalSize"`
	CollectTime  int64              `json:"collectTimeMs"`
	FromCache    bool               `json:"fromCache,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
}

// Status describes the collector for the status tool.
type Status struct {
	BrowserConnected bool        `json:"browserConnected"`
	CollectedURLs    int         `json:"collectedUrls"`
	TotalFiles       int         `json:"totalFiles"`
	TotalSize        int         `json:"totalSize"`
	CacheStats       cache.Stats `json:"cacheStats"`
}

// urlBuffer accumulates one URL's harvest. Buffers persist across
// sessions until ClearAllData or Close, bounded by MaxCollectedURLs.
type urlBuffer struct {
	url       string
	files     []types.ScriptFile // CDP emission order
	totalSize int
	storedAt  time.Time
}

// Collector is safe for concurrent use.
type Collector struct {
	cfg        config.CollectorConfig
	browserCfg config.BrowserConfig
	cache      *cache.Cache
	comp       *compress.Compressor

	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
	activePage *rod.Page
	buffers    map[string]*urlBuffer
	order      []string // insertion order of buffer URLs
	requests   []types.CollectedRequest
}

// New wires a collector over its owned cache and compressor.
func New(cfg config.CollectorConfig, browserCfg config.BrowserConfig, c *cache.Cache, comp *compress.Compressor) *Collector {
	return &Collector{
		cfg:        cfg,
		browserCfg: browserCfg,
		cache:      c,
		comp:       comp,
		buffers:    make(map[string]*urlBuffer),
	}
}

// Init launches (or attaches to) the browser. Idempotent.
func (c *Collector) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return nil
	}

	controlURL := c.browserCfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(c.browserCfg.Headless)
		url, err := l.Launch()
		if err != nil {
			return rerr.Wrap(rerr.KindCDP, "launch chrome", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return rerr.Wrap(rerr.KindCDP, "connect to chrome", err)
	}
	c.browser = browser
	c.controlURL = controlURL
	logging.Browser("browser connected: %s", controlURL)
	return nil
}

// Close clears all derived data, then shuts the browser down. Data is
// cleared before the browser closes so a failed close cannot leave
// stale buffers behind.
func (c *Collector) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffers = make(map[string]*urlBuffer)
	c.order = nil
	c.requests = nil
	if err := c.cache.Clear(); err != nil {
		logging.CollectorWarn("cache clear on close: %v", err)
	}

	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
		c.activePage = nil
	}
	logging.Browser("browser closed")
	return err
}

// IsConnected reports whether the browser is up.
func (c *Collector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.browser != nil
}

// CreatePage opens a page and makes it the active one.
func (c *Collector) CreatePage(ctx context.Context, url string) (*rod.Page, error) {
	page, err := c.newPage(ctx, url)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.activePage = page
	c.mu.Unlock()
	return page, nil
}

// newPage opens a page without touching the active-page slot; Collect
// uses throwaway pages that must not shadow the dispatcher's.
func (c *Collector) newPage(ctx context.Context, url string) (*rod.Page, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	browser := c.browser
	c.mu.Unlock()

	target := url
	if target == "" {
		target = "about:blank"
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "create page", err)
	}
	return page, nil
}

// GetActivePage returns the current page, or nil.
func (c *Collector) GetActivePage() *rod.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activePage
}

// ClearAllData drops every buffer and flushes the cache.
func (c *Collector) ClearAllData() error {
	c.mu.Lock()
	c.buffers = make(map[string]*urlBuffer)
	c.order = nil
	c.requests = nil
	c.mu.Unlock()
	return c.cache.Clear()
}

// GetStatus reports buffer and cache occupancy.
func (c *Collector) GetStatus() Status {
	c.mu.Lock()
	files, size := 0, 0
	for _, b := range c.buffers {
		files += len(b.files)
		size += b.totalSize
	}
	st := Status{
		BrowserConnected: c.browser != nil,
		CollectedURLs:    len(c.buffers),
		TotalFiles:       files,
		TotalSize:        size,
	}
	c.mu.Unlock()
	st.CacheStats = c.cache.Stats()
	return st
}

// Requests returns the recorded network exchanges.
func (c *Collector) Requests() []types.CollectedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.CollectedRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// storeBuffer registers a finished harvest, evicting the oldest buffer
// when the URL cap is reached.
func (c *Collector) storeBuffer(url string, files []types.ScriptFile, totalSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.buffers[url]; !exists {
		for c.cfg.MaxCollectedURLs > 0 && len(c.order) >= c.cfg.MaxCollectedURLs {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.buffers, oldest)
			logging.CollectorDebug("evicted oldest url buffer: %s", oldest)
		}
		c.order = append(c.order, url)
	}
	c.buffers[url] = &urlBuffer{
		url:       url,
		files:     files,
		totalSize: totalSize,
		storedAt:  time.Now(),
	}
}

// optionsHash normalizes Options into the cache key component.
func optionsHash(opts Options) string {
	data, err := json.Marshal(opts)
	if err != nil {
		return "default"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// effectiveBounds resolves per-call bounds against config.
func (c *Collector) effectiveBounds(opts Options) (maxFiles, maxFileSize, maxTotal int, timeout time.Duration) {
	maxFiles = c.cfg.MaxFilesPerCollect
	maxFileSize = c.cfg.MaxSingleFileSize
	if opts.MaxFileSize > 0 && opts.MaxFileSize < maxFileSize {
		maxFileSize = opts.MaxFileSize
	}
	maxTotal = c.cfg.MaxTotalSize
	if opts.MaxTotalSize > 0 && opts.MaxTotalSize < maxTotal {
		maxTotal = opts.MaxTotalSize
	}
	timeout = c.cfg.Timeout()
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}
	return
}

func fmtBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
