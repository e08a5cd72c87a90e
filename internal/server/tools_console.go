package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"jsrecon/internal/rerr"
	"jsrecon/internal/types"
)

// consoleBufferMax bounds the captured log/exception rings.
const consoleBufferMax = 1000

func (s *Server) registerConsoleTools(srv *mcpserver.MCPServer) {
	srv.AddTool(mcp.NewTool("console_enable",
		mcp.WithDescription("Start capturing console output and exceptions"),
	), s.wrap("console_enable", s.handleConsoleEnable))

	srv.AddTool(mcp.NewTool("console_get_logs",
		mcp.WithDescription("Return captured console logs; large results return a detail token"),
		mcp.WithString("level", mcp.Description("Filter: log, warn, error, info, debug")),
		mcp.WithNumber("limit", mcp.Description("Max entries (default 100)")),
	), s.wrap("console_get_logs", s.handleConsoleGetLogs))

	srv.AddTool(mcp.NewTool("console_execute",
		mcp.WithDescription("Execute an expression in page context and capture its value"),
		mcp.WithString("expression", mcp.Required()),
	), s.wrap("console_execute", s.handleConsoleExecute))

	srv.AddTool(mcp.NewTool("console_get_exceptions",
		mcp.WithDescription("Return captured uncaught exceptions"),
	), s.wrap("console_get_exceptions", s.handleConsoleExceptions))

	srv.AddTool(mcp.NewTool("console_inject_interceptor",
		mcp.WithDescription("Install a page-context interceptor: xhr, fetch, function-tracer or script-monitor"),
		mcp.WithString("kind", mcp.Description("xhr | fetch | function-tracer | script-monitor"), mcp.Required()),
		mcp.WithString("target", mcp.Description("Function path for function-tracer (e.g. JSON.stringify)")),
	), s.wrap("console_inject_interceptor", s.handleInjectInterceptor))
}

func (s *Server) handleConsoleEnable(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.console.enabled {
		return ok(map[string]interface{}{"alreadyEnabled": true}), nil
	}

	if err := (proto.RuntimeEnable{}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "Runtime.enable", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.console.detach = cancel
	eventPage := page.Context(ctx)
	go eventPage.EachEvent(
		func(ev *proto.RuntimeConsoleAPICalled) {
			s.mu.Lock()
			s.console.logs = ringAppend(s.console.logs, types.ConsoleLog{
				Level:     string(ev.Type),
				Text:      stringifyRemoteArgs(ev.Args),
				Timestamp: time.Now(),
			}, consoleBufferMax)
			s.mu.Unlock()
		},
		func(ev *proto.RuntimeExceptionThrown) {
			exc := types.PageException{Timestamp: time.Now()}
			if d := ev.ExceptionDetails; d != nil {
				exc.Text = d.Text
				exc.URL = d.URL
				exc.Line = d.LineNumber
				exc.Column = d.ColumnNumber
				if d.Exception != nil && d.Exception.Description != "" {
					exc.Text = d.Exception.Description
				}
			}
			s.mu.Lock()
			s.console.exceptions = ringAppend(s.console.exceptions, exc, consoleBufferMax)
			s.mu.Unlock()
		},
	)()

	s.console.enabled = true
	return ok(nil), nil
}

func (s *Server) handleConsoleGetLogs(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	level := req.GetString("level", "")
	limit := argInt(req, "limit", 100)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.console.enabled {
		return nil, rerr.New(rerr.KindInvariant, "console capture is not enabled").
			WithHint("call console_enable first")
	}

	var out []types.ConsoleLog
	for i := len(s.console.logs) - 1; i >= 0 && len(out) < limit; i-- {
		l := s.console.logs[i]
		if level != "" && l.Level != level {
			continue
		}
		out = append(out, l)
	}
	// Newest-last reads naturally.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return map[string]interface{}{"logs": out, "total": len(s.console.logs)}, nil
}

// consoleLogs exposes the captured logs to analysis handlers.
func (s *Server) consoleLogs() []types.ConsoleLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ConsoleLog, len(s.console.logs))
	copy(out, s.console.logs)
	return out
}

func (s *Server) handleConsoleExecute(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	expr, err := req.RequireString("expression")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: expression")
	}
	var out interface{}
	if err := evalJSON(page.Context(ctx), wrapExpression(expr), &out); err != nil {
		return nil, err
	}
	return map[string]interface{}{"result": out}, nil
}

func (s *Server) handleConsoleExceptions(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.console.enabled {
		return nil, rerr.New(rerr.KindInvariant, "console capture is not enabled").
			WithHint("call console_enable first")
	}
	out := make([]types.PageException, len(s.console.exceptions))
	copy(out, s.console.exceptions)
	return map[string]interface{}{"exceptions": out, "count": len(out)}, nil
}

// interceptorScripts log into console so captures flow through the
// existing console buffer.
var interceptorScripts = map[string]string{
	"xhr": `(() => {
		if (window.__jsreconXHRHook) return 'already installed';
		window.__jsreconXHRHook = true;
		const open = XMLHttpRequest.prototype.open;
		const send = XMLHttpRequest.prototype.send;
		XMLHttpRequest.prototype.open = function(method, url) {
			this.__jsrecon = { method, url };
			return open.apply(this, arguments);
		};
		XMLHttpRequest.prototype.send = function(body) {
			const meta = this.__jsrecon || {};
			console.log('[xhr-intercept]', meta.method, meta.url, body ? String(body).slice(0, 500) : '');
			return send.apply(this, arguments);
		};
		return 'installed';
	})()`,
	"fetch": `(() => {
		if (window.__jsreconFetchHook) return 'already installed';
		window.__jsreconFetchHook = true;
		const nativeFetch = window.fetch;
		window.fetch = function(input, init) {
			const url = typeof input === 'string' ? input : (input && input.url);
			const body = init && init.body ? String(init.body).slice(0, 500) : '';
			console.log('[fetch-intercept]', (init && init.method) || 'GET', url, body);
			return nativeFetch.apply(this, arguments);
		};
		return 'installed';
	})()`,
	"script-monitor": `(() => {
		if (window.__jsreconScriptMonitor) return 'already installed';
		window.__jsreconScriptMonitor = true;
		new MutationObserver((muts) => {
			for (const m of muts) {
				for (const node of m.addedNodes) {
					if (node.tagName === 'SCRIPT') {
						console.log('[script-monitor]', node.src || 'inline', (node.textContent || '').slice(0, 200));
					}
				}
			}
		}).observe(document.documentElement, { childList: true, subtree: true });
		return 'installed';
	})()`,
}

// functionTracerTemplate wraps one named function path with argument
// logging; %s is the dotted path.
const functionTracerTemplate = `(() => {
	const path = %q;
	const segs = path.split('.');
	const name = segs.pop();
	let owner = window;
	for (const seg of segs) {
		owner = owner && owner[seg];
	}
	if (!owner || typeof owner[name] !== 'function') return 'target not found: ' + path;
	const native = owner[name];
	owner[name] = function() {
		try {
			console.log('[fn-trace]', path, JSON.stringify(Array.from(arguments)).slice(0, 500));
		} catch (e) {
			console.log('[fn-trace]', path, '<unserializable args>');
		}
		return native.apply(this, arguments);
	};
	return 'installed';
})()`

func (s *Server) handleInjectInterceptor(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	kind, err := req.RequireString("kind")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: kind")
	}

	var js string
	if kind == "function-tracer" {
		target := req.GetString("target", "")
		if target == "" {
			return nil, rerr.New(rerr.KindInvariant, "function-tracer requires target")
		}
		js = formatTracer(target)
	} else {
		script, okKind := interceptorScripts[kind]
		if !okKind {
			return nil, rerr.New(rerr.KindInvariant, "unknown interceptor kind: "+kind).
				WithHint("valid kinds: xhr, fetch, function-tracer, script-monitor")
		}
		js = script
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{JS: "() => " + js, ByValue: true})
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "install interceptor", err)
	}
	return ok(map[string]interface{}{"status": res.Value.Str()}), nil
}

func formatTracer(target string) string {
	return fmt.Sprintf(functionTracerTemplate, target)
}

func stringifyRemoteArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
