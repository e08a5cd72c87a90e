package server

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"jsrecon/internal/rerr"
)

func (s *Server) registerDOMTools(srv *mcpserver.MCPServer) {
	sel := func() mcp.ToolOption {
		return mcp.WithString("selector", mcp.Description("CSS selector"), mcp.Required())
	}

	srv.AddTool(mcp.NewTool("dom_query_selector",
		mcp.WithDescription("Return the first element matching a selector"), sel(),
	), s.wrap("dom_query_selector", s.handleQuerySelector))

	srv.AddTool(mcp.NewTool("dom_query_all",
		mcp.WithDescription("Return all elements matching a selector (bounded)"), sel(),
		mcp.WithNumber("limit", mcp.Description("Max elements (default 50)")),
	), s.wrap("dom_query_all", s.handleQueryAll))

	srv.AddTool(mcp.NewTool("dom_get_structure",
		mcp.WithDescription("Dump the DOM tree to a bounded depth; large results return a detail token"),
		mcp.WithNumber("maxDepth", mcp.Description("Depth bound (default 6)")),
	), s.wrap("dom_get_structure", s.handleGetStructure))

	srv.AddTool(mcp.NewTool("dom_find_clickable",
		mcp.WithDescription("List clickable elements (links, buttons, handlers)"),
	), s.wrap("dom_find_clickable", s.handleFindClickable))

	srv.AddTool(mcp.NewTool("dom_get_computed_style",
		mcp.WithDescription("Computed style of the first matching element"), sel(),
		mcp.WithString("properties", mcp.Description("Comma-separated property filter")),
	), s.wrap("dom_get_computed_style", s.handleComputedStyle))

	srv.AddTool(mcp.NewTool("dom_find_by_text",
		mcp.WithDescription("Find elements whose text contains a needle"),
		mcp.WithString("text", mcp.Required()),
	), s.wrap("dom_find_by_text", s.handleFindByText))

	srv.AddTool(mcp.NewTool("dom_get_xpath",
		mcp.WithDescription("Compute the XPath of the first matching element"), sel(),
	), s.wrap("dom_get_xpath", s.handleGetXPath))

	srv.AddTool(mcp.NewTool("dom_is_in_viewport",
		mcp.WithDescription("Whether the first matching element intersects the viewport"), sel(),
	), s.wrap("dom_is_in_viewport", s.handleIsInViewport))

	// Interaction group.
	srv.AddTool(mcp.NewTool("page_click",
		mcp.WithDescription("Click the first matching element"), sel(),
	), s.wrap("page_click", s.handleClick))

	srv.AddTool(mcp.NewTool("page_type",
		mcp.WithDescription("Type text into the first matching element"), sel(),
		mcp.WithString("text", mcp.Required()),
	), s.wrap("page_type", s.handleType))

	srv.AddTool(mcp.NewTool("page_select",
		mcp.WithDescription("Select an option in a <select>"), sel(),
		mcp.WithString("value", mcp.Required()),
	), s.wrap("page_select", s.handleSelect))

	srv.AddTool(mcp.NewTool("page_hover",
		mcp.WithDescription("Hover the first matching element"), sel(),
	), s.wrap("page_hover", s.handleHover))

	srv.AddTool(mcp.NewTool("page_scroll",
		mcp.WithDescription("Scroll the page by pixel deltas"),
		mcp.WithNumber("dx"), mcp.WithNumber("dy"),
	), s.wrap("page_scroll", s.handleScroll))

	srv.AddTool(mcp.NewTool("page_press_key",
		mcp.WithDescription("Press a keyboard key (Enter, Tab, Escape, ...)"),
		mcp.WithString("key", mcp.Required()),
	), s.wrap("page_press_key", s.handlePressKey))

	srv.AddTool(mcp.NewTool("page_wait_for_selector",
		mcp.WithDescription("Wait until a selector appears"), sel(),
		mcp.WithNumber("timeoutMs", mcp.Description("Wait bound (default 10000)")),
	), s.wrap("page_wait_for_selector", s.handleWaitForSelector))

	srv.AddTool(mcp.NewTool("page_evaluate",
		mcp.WithDescription("Evaluate a JavaScript function in page context; large results return a detail token"),
		mcp.WithString("expression", mcp.Description("Function or expression to evaluate"), mcp.Required()),
	), s.wrap("page_evaluate", s.handleEvaluate))

	srv.AddTool(mcp.NewTool("page_inject_script",
		mcp.WithDescription("Inject a script into the current document"),
		mcp.WithString("source", mcp.Required()),
	), s.wrap("page_inject_script", s.handleInjectScript))

	srv.AddTool(mcp.NewTool("performance_get_metrics",
		mcp.WithDescription("Read CDP performance metrics"),
	), s.wrap("performance_get_metrics", s.handlePerfMetrics))
}

const elementProbeJS = `(sel, limit) => {
	const describe = (el) => ({
		tag: el.tagName.toLowerCase(),
		id: el.id || undefined,
		classes: el.className && typeof el.className === 'string' ? el.className : undefined,
		text: (el.innerText || '').trim().slice(0, 200) || undefined,
		attributes: Object.fromEntries(Array.from(el.attributes).slice(0, 16).map(a => [a.name, a.value])),
	});
	const els = Array.from(document.querySelectorAll(sel)).slice(0, limit);
	return els.map(describe);
}`

func (s *Server) handleQuerySelector(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	selector, err := req.RequireString("selector")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: selector")
	}
	res, err := page.Eval(elementProbeJS, selector, 1)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "query selector", err)
	}
	var els []map[string]interface{}
	raw, _ := res.Value.MarshalJSON()
	_ = jsonUnmarshal(string(raw), &els)
	if len(els) == 0 {
		return map[string]interface{}{"found": false}, nil
	}
	return map[string]interface{}{"found": true, "element": els[0]}, nil
}

func (s *Server) handleQueryAll(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	selector, err := req.RequireString("selector")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: selector")
	}
	limit := argInt(req, "limit", 50)
	res, err := page.Eval(elementProbeJS, selector, limit)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "query all", err)
	}
	var els []map[string]interface{}
	raw, _ := res.Value.MarshalJSON()
	_ = jsonUnmarshal(string(raw), &els)
	return map[string]interface{}{"count": len(els), "elements": els}, nil
}

func (s *Server) handleGetStructure(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	maxDepth := argInt(req, "maxDepth", 6)

	var structure map[string]interface{}
	err = evalJSON(page, fmt.Sprintf(`() => {
		const walk = (el, depth) => {
			if (!el || depth > %d) return null;
			const node = {
				tag: el.tagName ? el.tagName.toLowerCase() : '#text',
				id: el.id || undefined,
				children: [],
			};
			for (const child of Array.from(el.children || []).slice(0, 40)) {
				const sub = walk(child, depth + 1);
				if (sub) node.children.push(sub);
			}
			if (node.children.length === 0) delete node.children;
			return node;
		};
		return walk(document.documentElement, 0);
	}`, maxDepth), &structure)
	if err != nil {
		return nil, err
	}
	return structure, nil
}

func (s *Server) handleFindClickable(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	var els []map[string]interface{}
	err = evalJSON(page, `() => {
		const clickable = document.querySelectorAll('a[href], button, [onclick], [role="button"], input[type="submit"], input[type="button"]');
		return Array.from(clickable).slice(0, 100).map(el => ({
			tag: el.tagName.toLowerCase(),
			id: el.id || undefined,
			text: (el.innerText || el.value || '').trim().slice(0, 80),
			href: el.href || undefined,
		}));
	}`, &els)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"count": len(els), "elements": els}, nil
}

func (s *Server) handleComputedStyle(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	selector, err := req.RequireString("selector")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: selector")
	}
	props := req.GetString("properties", "")

	res, err := page.Eval(`(sel, propsCsv) => {
		const el = document.querySelector(sel);
		if (!el) return null;
		const style = window.getComputedStyle(el);
		const wanted = propsCsv ? propsCsv.split(',').map(p => p.trim()) : null;
		const out = {};
		if (wanted) {
			for (const p of wanted) out[p] = style.getPropertyValue(p);
		} else {
			for (const p of ['display','visibility','position','width','height','color','background-color','z-index','opacity']) {
				out[p] = style.getPropertyValue(p);
			}
		}
		return out;
	}`, selector, props)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "computed style", err)
	}
	var style map[string]string
	raw, _ := res.Value.MarshalJSON()
	_ = jsonUnmarshal(string(raw), &style)
	if style == nil {
		return map[string]interface{}{"found": false}, nil
	}
	return map[string]interface{}{"found": true, "style": style}, nil
}

func (s *Server) handleFindByText(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	needle, err := req.RequireString("text")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: text")
	}
	res, err := page.Eval(`(needle) => {
		const out = [];
		const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_ELEMENT);
		while (walker.nextNode() && out.length < 50) {
			const el = walker.currentNode;
			const own = Array.from(el.childNodes)
				.filter(n => n.nodeType === Node.TEXT_NODE)
				.map(n => n.textContent).join('');
			if (own.includes(needle)) {
				out.push({ tag: el.tagName.toLowerCase(), id: el.id || undefined, text: own.trim().slice(0, 160) });
			}
		}
		return out;
	}`, needle)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "find by text", err)
	}
	var els []map[string]interface{}
	raw, _ := res.Value.MarshalJSON()
	_ = jsonUnmarshal(string(raw), &els)
	return map[string]interface{}{"count": len(els), "elements": els}, nil
}

func (s *Server) handleGetXPath(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	selector, err := req.RequireString("selector")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: selector")
	}
	res, err := page.Eval(`(sel) => {
		let el = document.querySelector(sel);
		if (!el) return null;
		const segs = [];
		while (el && el.nodeType === Node.ELEMENT_NODE) {
			let idx = 1;
			for (let sib = el.previousElementSibling; sib; sib = sib.previousElementSibling) {
				if (sib.tagName === el.tagName) idx++;
			}
			segs.unshift(el.tagName.toLowerCase() + '[' + idx + ']');
			el = el.parentElement;
		}
		return '/' + segs.join('/');
	}`, selector)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "xpath", err)
	}
	if res.Value.Nil() {
		return map[string]interface{}{"found": false}, nil
	}
	return map[string]interface{}{"found": true, "xpath": res.Value.Str()}, nil
}

func (s *Server) handleIsInViewport(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	selector, err := req.RequireString("selector")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: selector")
	}
	res, err := page.Eval(`(sel) => {
		const el = document.querySelector(sel);
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return r.bottom > 0 && r.right > 0 && r.top < window.innerHeight && r.left < window.innerWidth;
	}`, selector)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "viewport check", err)
	}
	if res.Value.Nil() {
		return map[string]interface{}{"found": false}, nil
	}
	return map[string]interface{}{"found": true, "inViewport": res.Value.Bool()}, nil
}

func (s *Server) handleClick(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	selector, err := req.RequireString("selector")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: selector")
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "element not found: "+selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "click", err)
	}
	return ok(nil), nil
}

func (s *Server) handleType(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	selector, err := req.RequireString("selector")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: selector")
	}
	text, err := req.RequireString("text")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: text")
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "element not found: "+selector, err)
	}
	if err := el.Input(text); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "type", err)
	}
	return ok(nil), nil
}

func (s *Server) handleSelect(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	selector, err := req.RequireString("selector")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: selector")
	}
	value, err := req.RequireString("value")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: value")
	}
	_, err = page.Context(ctx).Eval(`(sel, val) => {
		const el = document.querySelector(sel);
		if (!el) throw new Error('not found');
		el.value = val;
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	}`, selector, value)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "select", err)
	}
	return ok(nil), nil
}

func (s *Server) handleHover(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	selector, err := req.RequireString("selector")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: selector")
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "element not found: "+selector, err)
	}
	if err := el.Hover(); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "hover", err)
	}
	return ok(nil), nil
}

func (s *Server) handleScroll(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	dx := argInt(req, "dx", 0)
	dy := argInt(req, "dy", 600)
	if err := page.Context(ctx).Mouse.Scroll(float64(dx), float64(dy), 1); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "scroll", err)
	}
	return ok(nil), nil
}

func (s *Server) handlePressKey(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	key, err := req.RequireString("key")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: key")
	}
	k, okKey := keyMap[key]
	if !okKey {
		if len(key) == 1 {
			k = input.Key(key[0])
		} else {
			return nil, rerr.New(rerr.KindInvariant, "unknown key: "+key)
		}
	}
	if err := page.Context(ctx).Keyboard.Press(k); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "press key", err)
	}
	return ok(nil), nil
}

var keyMap = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
}

func (s *Server) handleWaitForSelector(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	selector, err := req.RequireString("selector")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: selector")
	}
	timeout := time.Duration(argInt(req, "timeoutMs", 10000)) * time.Millisecond

	el, err := page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindTimeout, "selector did not appear: "+selector, err)
	}
	visible, _ := el.Visible()
	return ok(map[string]interface{}{"visible": visible}), nil
}

func (s *Server) handleEvaluate(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
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

// wrapExpression turns a bare expression into an evaluable function;
// function literals pass through.
func wrapExpression(expr string) string {
	trimmed := len(expr) > 0 && (expr[0] == '(' || hasFunctionPrefix(expr))
	if trimmed {
		return expr
	}
	return "() => (" + expr + ")"
}

func hasFunctionPrefix(expr string) bool {
	const fn = "function"
	const async = "async"
	return len(expr) >= len(fn) && expr[:len(fn)] == fn ||
		len(expr) >= len(async) && expr[:len(async)] == async
}

func (s *Server) handleInjectScript(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	source, err := req.RequireString("source")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: source")
	}
	_, err = page.Context(ctx).Eval(`(src) => {
		const el = document.createElement('script');
		el.textContent = src;
		document.documentElement.appendChild(el);
		el.remove();
		return true;
	}`, source)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "inject script", err)
	}
	return ok(nil), nil
}

func (s *Server) handlePerfMetrics(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := (proto.PerformanceEnable{}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "Performance.enable", err)
	}
	res, err := proto.PerformanceGetMetrics{}.Call(page)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "Performance.getMetrics", err)
	}
	metrics := make(map[string]float64, len(res.Metrics))
	for _, m := range res.Metrics {
		metrics[m.Name] = m.Value
	}
	return metrics, nil
}
