package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"jsrecon/internal/rerr"
)

func (s *Server) registerBrowserTools(srv *mcpserver.MCPServer) {
	srv.AddTool(mcp.NewTool("browser_launch",
		mcp.WithDescription("Launch (or attach to) the Chrome instance"),
	), s.wrap("browser_launch", s.handleBrowserLaunch))

	srv.AddTool(mcp.NewTool("browser_close",
		mcp.WithDescription("Close the browser; collected data and caches are cleared first"),
	), s.wrap("browser_close", s.handleBrowserClose))

	srv.AddTool(mcp.NewTool("browser_status",
		mcp.WithDescription("Report browser, buffer and cache status"),
	), s.wrap("browser_status", s.handleBrowserStatus))

	srv.AddTool(mcp.NewTool("page_navigate",
		mcp.WithDescription("Navigate the active page (created on demand) to a URL"),
		mcp.WithString("url", mcp.Description("Absolute URL to open"), mcp.Required()),
		mcp.WithBoolean("enableNetworkMonitor", mcp.Description("Start the network monitor before navigating")),
		mcp.WithBoolean("detectCaptcha", mcp.Description("Run captcha detection after load")),
	), s.wrap("page_navigate", s.handlePageNavigate))

	srv.AddTool(mcp.NewTool("page_reload",
		mcp.WithDescription("Reload the active page"),
	), s.wrap("page_reload", s.handlePageReload))

	srv.AddTool(mcp.NewTool("page_back",
		mcp.WithDescription("Go back in history"),
	), s.wrap("page_back", s.handlePageBack))

	srv.AddTool(mcp.NewTool("page_forward",
		mcp.WithDescription("Go forward in history"),
	), s.wrap("page_forward", s.handlePageForward))

	srv.AddTool(mcp.NewTool("page_screenshot",
		mcp.WithDescription("Capture a screenshot to the configured directory"),
		mcp.WithBoolean("fullPage", mcp.Description("Capture the full scroll height")),
	), s.wrap("page_screenshot", s.handleScreenshot))

	srv.AddTool(mcp.NewTool("page_set_viewport",
		mcp.WithDescription("Override viewport size and device scale"),
		mcp.WithNumber("width", mcp.Required()),
		mcp.WithNumber("height", mcp.Required()),
		mcp.WithNumber("deviceScaleFactor"),
		mcp.WithBoolean("mobile"),
	), s.wrap("page_set_viewport", s.handleSetViewport))

	srv.AddTool(mcp.NewTool("page_set_cookies",
		mcp.WithDescription("Set cookies on the active page"),
		mcp.WithString("cookies", mcp.Description("JSON array of {name,value,domain,path}"), mcp.Required()),
	), s.wrap("page_set_cookies", s.handleSetCookies))

	srv.AddTool(mcp.NewTool("page_get_cookies",
		mcp.WithDescription("Read cookies visible to the active page"),
	), s.wrap("page_get_cookies", s.handleGetCookies))

	srv.AddTool(mcp.NewTool("page_clear_cookies",
		mcp.WithDescription("Clear all browser cookies"),
	), s.wrap("page_clear_cookies", s.handleClearCookies))

	srv.AddTool(mcp.NewTool("page_get_storage",
		mcp.WithDescription("Dump localStorage and sessionStorage"),
	), s.wrap("page_get_storage", s.handleGetStorage))

	srv.AddTool(mcp.NewTool("page_set_storage",
		mcp.WithDescription("Set a storage entry"),
		mcp.WithString("store", mcp.Description("localStorage or sessionStorage"), mcp.Required()),
		mcp.WithString("key", mcp.Required()),
		mcp.WithString("value", mcp.Required()),
	), s.wrap("page_set_storage", s.handleSetStorage))

	srv.AddTool(mcp.NewTool("page_get_all_links",
		mcp.WithDescription("List anchor hrefs on the page"),
	), s.wrap("page_get_all_links", s.handleGetAllLinks))

	srv.AddTool(mcp.NewTool("stealth_inject",
		mcp.WithDescription("Install the configured stealth page-init script"),
	), s.wrap("stealth_inject", s.handleStealthInject))

	srv.AddTool(mcp.NewTool("stealth_set_user_agent",
		mcp.WithDescription("Override the user agent"),
		mcp.WithString("userAgent", mcp.Required()),
	), s.wrap("stealth_set_user_agent", s.handleSetUserAgent))
}

func (s *Server) handleBrowserLaunch(ctx context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	if err := s.collector.Init(ctx); err != nil {
		return nil, err
	}
	return ok(map[string]interface{}{"headless": s.cfg.Browser.Headless}), nil
}

func (s *Server) handleBrowserClose(ctx context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	s.detachMonitors()
	if err := s.collector.Close(ctx); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "browser close", err)
	}
	return ok(nil), nil
}

func (s *Server) handleBrowserStatus(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	return s.collector.GetStatus(), nil
}

func (s *Server) handlePageNavigate(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: url")
	}

	page := s.collector.GetActivePage()
	if page == nil {
		page, err = s.collector.CreatePage(ctx, "")
		if err != nil {
			return nil, err
		}
	}

	if req.GetBool("enableNetworkMonitor", false) {
		if err := s.startNetworkMonitor(page); err != nil {
			return nil, err
		}
	}

	timeout := s.cfg.Browser.NavigationTimeout()
	if err := page.Context(ctx).Timeout(timeout).Navigate(url); err != nil {
		return nil, rerr.Wrap(rerr.KindNavigation, "navigate "+url, err).
			WithHint("call network_enable before page_navigate to capture the failing request")
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return nil, rerr.Wrap(rerr.KindNavigation, "page load did not settle", err)
	}

	info, _ := page.Info()
	result := map[string]interface{}{"url": url}
	if info != nil {
		result["title"] = info.Title
		result["finalUrl"] = info.URL
	}

	if req.GetBool("detectCaptcha", false) {
		result["captcha"] = detectCaptcha(page)
	}
	return ok(result), nil
}

// detectCaptcha runs the lightweight in-page probe. Detection policy
// lives with the stealth scripts; only this result shape is consumed
// by agents.
func detectCaptcha(page *rod.Page) map[string]interface{} {
	var hit struct {
		Detected bool   `json:"detected"`
		Type     string `json:"type"`
	}
	err := evalJSON(page, `() => {
		const probes = [
			['recaptcha', 'iframe[src*="recaptcha"], .g-recaptcha'],
			['hcaptcha', 'iframe[src*="hcaptcha"], .h-captcha'],
			['turnstile', 'iframe[src*="turnstile"], .cf-turnstile'],
			['slider', '[class*="slider-captcha"], [class*="captcha_slide"]'],
		];
		for (const [type, sel] of probes) {
			if (document.querySelector(sel)) return { detected: true, type };
		}
		return { detected: false, type: '' };
	}`, &hit)
	if err != nil {
		return map[string]interface{}{"detected": false, "error": err.Error()}
	}
	out := map[string]interface{}{"detected": hit.Detected}
	if hit.Type != "" {
		out["type"] = hit.Type
	}
	return out
}

func (s *Server) handlePageReload(ctx context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := page.Context(ctx).Reload(); err != nil {
		return nil, rerr.Wrap(rerr.KindNavigation, "reload", err)
	}
	return ok(nil), nil
}

func (s *Server) handlePageBack(ctx context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := page.Context(ctx).NavigateBack(); err != nil {
		return nil, rerr.Wrap(rerr.KindNavigation, "history back", err)
	}
	return ok(nil), nil
}

func (s *Server) handlePageForward(ctx context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := page.Context(ctx).NavigateForward(); err != nil {
		return nil, rerr.Wrap(rerr.KindNavigation, "history forward", err)
	}
	return ok(nil), nil
}

func (s *Server) handleScreenshot(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	data, err := page.Context(ctx).Screenshot(req.GetBool("fullPage", false), nil)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "screenshot", err)
	}

	dir := s.cfg.Browser.ScreenshotDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("shot-%d.png", time.Now().UnixMilli()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, err
	}
	return ok(map[string]interface{}{"path": path, "bytes": len(data)}), nil
}

func (s *Server) handleSetViewport(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	scale := 1.0
	if v, okF := req.GetArguments()["deviceScaleFactor"].(float64); okF && v > 0 {
		scale = v
	}
	err = (proto.EmulationSetDeviceMetricsOverride{
		Width:             argInt(req, "width", s.cfg.Browser.GetViewportWidth()),
		Height:            argInt(req, "height", s.cfg.Browser.GetViewportHeight()),
		DeviceScaleFactor: scale,
		Mobile:            req.GetBool("mobile", false),
	}).Call(page)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "set viewport", err)
	}
	return ok(nil), nil
}

func (s *Server) handleSetCookies(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	raw, err := req.RequireString("cookies")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: cookies")
	}
	var cookies []*proto.NetworkCookieParam
	if err := jsonUnmarshal(raw, &cookies); err != nil {
		return nil, rerr.Wrap(rerr.KindInvariant, "cookies must be a JSON array", err)
	}
	if err := page.SetCookies(cookies); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "set cookies", err)
	}
	return ok(map[string]interface{}{"count": len(cookies)}), nil
}

func (s *Server) handleGetCookies(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	res, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "get cookies", err)
	}
	return res.Cookies, nil
}

func (s *Server) handleClearCookies(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := (proto.NetworkClearBrowserCookies{}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "clear cookies", err)
	}
	return ok(nil), nil
}

func (s *Server) handleGetStorage(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	var out map[string]map[string]string
	err = evalJSON(page, `() => {
		const dump = (store) => {
			const out = {};
			try {
				for (let i = 0; i < store.length; i++) {
					const k = store.key(i);
					out[k] = store.getItem(k);
				}
			} catch (e) {}
			return out;
		};
		return { localStorage: dump(localStorage), sessionStorage: dump(sessionStorage) };
	}`, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Server) handleSetStorage(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	store, err := req.RequireString("store")
	if err != nil || (store != "localStorage" && store != "sessionStorage") {
		return nil, rerr.New(rerr.KindInvariant, "store must be localStorage or sessionStorage")
	}
	key, err := req.RequireString("key")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: key")
	}
	value := req.GetString("value", "")

	_, err = page.Eval(`(store, k, v) => { window[store].setItem(k, v); return true; }`, store, key, value)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "set storage", err)
	}
	return ok(nil), nil
}

func (s *Server) handleGetAllLinks(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	var links []map[string]string
	err = evalJSON(page, `() => Array.from(document.querySelectorAll('a[href]')).slice(0, 500).map(a => ({
		href: a.href, text: (a.innerText || '').trim().slice(0, 120)
	}))`, &links)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"links": links, "count": len(links)}, nil
}

func (s *Server) handleStealthInject(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	path := s.cfg.Browser.StealthScriptPath
	if path == "" {
		return nil, rerr.New(rerr.KindInvariant, "no stealth script configured").
			WithHint("set browser.stealth_script_path in config.yaml")
	}
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stealth script: %w", err)
	}
	if _, err := (proto.PageAddScriptToEvaluateOnNewDocument{Source: string(script)}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "install stealth script", err)
	}
	return ok(map[string]interface{}{"bytes": len(script)}), nil
}

func (s *Server) handleSetUserAgent(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	ua, err := req.RequireString("userAgent")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: userAgent")
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "set user agent", err)
	}
	return ok(nil), nil
}
