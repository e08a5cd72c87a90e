package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"jsrecon/internal/rerr"
)

func (s *Server) registerDebuggerTools(srv *mcpserver.MCPServer) {
	add := func(name, desc string, h handler, opts ...mcp.ToolOption) {
		toolOpts := append([]mcp.ToolOption{mcp.WithDescription(desc)}, opts...)
		srv.AddTool(mcp.NewTool(name, toolOpts...), s.wrap(name, h))
	}

	add("debugger_enable", "Enable the CDP debugger on the active page", s.handleDebuggerEnable)
	add("debugger_disable", "Disable the debugger and drop breakpoints", s.handleDebuggerDisable)
	add("debugger_pause", "Pause script execution", s.handleDebuggerPause)
	add("debugger_resume", "Resume script execution", s.handleDebuggerResume)
	add("debugger_step_into", "Step into the next call", s.handleStepInto)
	add("debugger_step_over", "Step over the next statement", s.handleStepOver)
	add("debugger_step_out", "Step out of the current frame", s.handleStepOut)

	add("debugger_evaluate", "Evaluate an expression on the paused call frame", s.handleDebuggerEvaluate,
		mcp.WithString("expression", mcp.Required()),
		mcp.WithNumber("frameIndex", mcp.Description("Call frame (default 0, the top)")))
	add("debugger_evaluate_global", "Evaluate an expression in global scope regardless of pause state", s.handleDebuggerEvaluateGlobal,
		mcp.WithString("expression", mcp.Required()))

	add("debugger_wait_for_paused", "Block until the debugger pauses or the wait times out", s.handleWaitForPaused,
		mcp.WithNumber("timeoutMs", mcp.Description("Wait bound (default 10000)")))
	add("debugger_get_paused_state", "Latest pause payload (call frames, reason)", s.handleGetPausedState)

	add("debugger_set_breakpoint", "Set a line breakpoint by script URL", s.handleSetBreakpoint,
		mcp.WithString("url", mcp.Required()),
		mcp.WithNumber("line", mcp.Required()),
		mcp.WithString("condition"))
	add("debugger_remove_breakpoint", "Remove a breakpoint by id", s.handleRemoveBreakpoint,
		mcp.WithString("breakpointId", mcp.Required()))
	add("debugger_list_breakpoints", "List installed breakpoints", s.handleListBreakpoints)
	add("debugger_set_breakpoint_on_exception", "Break on exceptions: none, uncaught or all", s.handlePauseOnExceptions,
		mcp.WithString("state", mcp.Required()))

	add("debugger_set_xhr_breakpoint", "Break on XHR/fetch whose URL contains a substring", s.handleSetXHRBreakpoint,
		mcp.WithString("urlSubstring", mcp.Required()))
	add("debugger_set_event_breakpoint", "Break on a DOM event by name", s.handleSetEventBreakpoint,
		mcp.WithString("eventName", mcp.Required()))
	add("debugger_set_blackbox_patterns", "Blackbox scripts matching the given URL patterns", s.handleSetBlackbox,
		mcp.WithString("patterns", mcp.Description("JSON array of regex strings"), mcp.Required()))

	add("debugger_add_watch", "Add a watch expression", s.handleAddWatch,
		mcp.WithString("expression", mcp.Required()))
	add("debugger_remove_watch", "Remove a watch expression", s.handleRemoveWatch,
		mcp.WithString("expression", mcp.Required()))
	add("debugger_evaluate_watches", "Evaluate every watch expression", s.handleEvaluateWatches)

	add("debugger_session_save", "Persist breakpoints and watches under a session name", s.handleSessionSave,
		mcp.WithString("name", mcp.Required()))
	add("debugger_session_load", "Restore a saved session's breakpoints and watches", s.handleSessionLoad,
		mcp.WithString("name", mcp.Required()))
	add("debugger_session_export", "Export a saved session as JSON", s.handleSessionExport,
		mcp.WithString("name", mcp.Required()))
	add("debugger_session_list", "List saved debugger sessions", s.handleSessionList)
}

func (s *Server) handleDebuggerEnable(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debug.enabled {
		return ok(map[string]interface{}{"alreadyEnabled": true}), nil
	}
	if _, err := (proto.DebuggerEnable{}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "Debugger.enable", err)
	}

	s.debug.pausedCh = make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	s.debug.detach = cancel
	eventPage := page.Context(ctx)
	go eventPage.EachEvent(
		func(ev *proto.DebuggerPaused) {
			s.mu.Lock()
			s.debug.paused = true
			s.debug.pausedInfo = summarizePause(ev)
			ch := s.debug.pausedCh
			s.mu.Unlock()
			select {
			case ch <- struct{}{}:
			default:
			}
		},
		func(_ *proto.DebuggerResumed) {
			s.mu.Lock()
			s.debug.paused = false
			s.mu.Unlock()
		},
	)()

	s.debug.enabled = true
	return ok(nil), nil
}

// summarizePause keeps the payload JSON-friendly and bounded.
func summarizePause(ev *proto.DebuggerPaused) interface{} {
	frames := make([]map[string]interface{}, 0, len(ev.CallFrames))
	for i, f := range ev.CallFrames {
		if i >= 20 {
			break
		}
		frames = append(frames, map[string]interface{}{
			"callFrameId":  string(f.CallFrameID),
			"functionName": f.FunctionName,
			"url":          f.URL,
			"line":         f.Location.LineNumber + 1,
		})
	}
	return map[string]interface{}{
		"reason":     string(ev.Reason),
		"callFrames": frames,
	}
}

func (s *Server) requireDebugger() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.debug.enabled {
		return rerr.New(rerr.KindInvariant, "debugger is not enabled").
			WithHint("call debugger_enable first")
	}
	return nil
}

func (s *Server) handleDebuggerDisable(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.debug.detach != nil {
		s.debug.detach()
		s.debug.detach = nil
	}
	s.debug.enabled = false
	s.debug.paused = false
	s.debug.breakpoints = make(map[string]breakpointRecord)
	s.mu.Unlock()

	if err := (proto.DebuggerDisable{}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "Debugger.disable", err)
	}
	return ok(nil), nil
}

func (s *Server) debuggerCommand(name string, call func() error) (interface{}, error) {
	if err := s.requireDebugger(); err != nil {
		return nil, err
	}
	if err := call(); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, name, err)
	}
	return ok(nil), nil
}

func (s *Server) handleDebuggerPause(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	return s.debuggerCommand("Debugger.pause", func() error { return proto.DebuggerPause{}.Call(page) })
}

func (s *Server) handleDebuggerResume(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	return s.debuggerCommand("Debugger.resume", func() error { return proto.DebuggerResume{}.Call(page) })
}

func (s *Server) handleStepInto(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	return s.debuggerCommand("Debugger.stepInto", func() error { return proto.DebuggerStepInto{}.Call(page) })
}

func (s *Server) handleStepOver(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	return s.debuggerCommand("Debugger.stepOver", func() error { return proto.DebuggerStepOver{}.Call(page) })
}

func (s *Server) handleStepOut(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	return s.debuggerCommand("Debugger.stepOut", func() error { return proto.DebuggerStepOut{}.Call(page) })
}

func (s *Server) handleDebuggerEvaluate(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := s.requireDebugger(); err != nil {
		return nil, err
	}
	expr, err := req.RequireString("expression")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: expression")
	}

	s.mu.Lock()
	info, isPaused := s.debug.pausedInfo, s.debug.paused
	s.mu.Unlock()
	if !isPaused || info == nil {
		return nil, rerr.New(rerr.KindInvariant, "debugger is not paused").
			WithHint("use debugger_evaluate_global, or pause first")
	}

	frameIdx := argInt(req, "frameIndex", 0)
	frames := info.(map[string]interface{})["callFrames"].([]map[string]interface{})
	if frameIdx < 0 || frameIdx >= len(frames) {
		return nil, rerr.New(rerr.KindInvariant, "frameIndex out of range")
	}
	frameID := frames[frameIdx]["callFrameId"].(string)

	res, err := proto.DebuggerEvaluateOnCallFrame{
		CallFrameID: proto.DebuggerCallFrameID(frameID),
		Expression:  expr,
		ReturnByValue: true,
	}.Call(page)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "evaluate on call frame", err)
	}
	return remoteObjectResult(res.Result, res.ExceptionDetails), nil
}

func (s *Server) handleDebuggerEvaluateGlobal(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	expr, err := req.RequireString("expression")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: expression")
	}
	res, err := proto.RuntimeEvaluate{
		Expression:    expr,
		ReturnByValue: true,
	}.Call(page.Context(ctx))
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "Runtime.evaluate", err)
	}
	return remoteObjectResult(res.Result, res.ExceptionDetails), nil
}

func remoteObjectResult(obj *proto.RuntimeRemoteObject, exc *proto.RuntimeExceptionDetails) map[string]interface{} {
	out := make(map[string]interface{})
	if exc != nil {
		out["exception"] = exc.Text
		if exc.Exception != nil {
			out["exception"] = exc.Exception.Description
		}
		return out
	}
	if obj == nil {
		out["result"] = nil
		return out
	}
	if !obj.Value.Nil() {
		var v interface{}
		raw, err := obj.Value.MarshalJSON()
		if err == nil && json.Unmarshal(raw, &v) == nil {
			out["result"] = v
			return out
		}
	}
	out["result"] = obj.Description
	out["type"] = string(obj.Type)
	return out
}

func (s *Server) handleWaitForPaused(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	if err := s.requireDebugger(); err != nil {
		return nil, err
	}
	timeout := time.Duration(argInt(req, "timeoutMs", 10000)) * time.Millisecond

	s.mu.Lock()
	if s.debug.paused {
		info := s.debug.pausedInfo
		s.mu.Unlock()
		return map[string]interface{}{"paused": true, "state": info}, nil
	}
	ch := s.debug.pausedCh
	s.mu.Unlock()

	select {
	case <-ch:
		s.mu.Lock()
		info := s.debug.pausedInfo
		s.mu.Unlock()
		return map[string]interface{}{"paused": true, "state": info}, nil
	case <-time.After(timeout):
		return nil, rerr.New(rerr.KindTimeout, "debugger did not pause within the wait bound")
	case <-ctx.Done():
		return nil, rerr.Wrap(rerr.KindTimeout, "wait cancelled", ctx.Err())
	}
}

func (s *Server) handleGetPausedState(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	if err := s.requireDebugger(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"paused": s.debug.paused,
		"state":  s.debug.pausedInfo,
	}, nil
}

func (s *Server) handleSetBreakpoint(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := s.requireDebugger(); err != nil {
		return nil, err
	}
	url, err := req.RequireString("url")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: url")
	}
	line := argInt(req, "line", 0)
	if line < 1 {
		return nil, rerr.New(rerr.KindInvariant, "line must be >= 1")
	}

	res, err := proto.DebuggerSetBreakpointByURL{
		URL:        url,
		LineNumber: line - 1,
		Condition:  req.GetString("condition", ""),
	}.Call(page)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "set breakpoint", err)
	}

	rec := breakpointRecord{
		ID:   string(res.BreakpointID),
		URL:  url,
		Line: line,
		Kind: "line",
	}
	s.mu.Lock()
	s.debug.breakpoints[rec.ID] = rec
	s.mu.Unlock()
	return ok(map[string]interface{}{"breakpointId": rec.ID, "resolvedLocations": len(res.Locations)}), nil
}

func (s *Server) handleRemoveBreakpoint(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	id, err := req.RequireString("breakpointId")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: breakpointId")
	}

	s.mu.Lock()
	rec, found := s.debug.breakpoints[id]
	delete(s.debug.breakpoints, id)
	s.mu.Unlock()

	switch rec.Kind {
	case "xhr":
		err = proto.DOMDebuggerRemoveXHRBreakpoint{URL: rec.Target}.Call(page)
	case "event":
		err = proto.DOMDebuggerRemoveEventListenerBreakpoint{EventName: rec.Target}.Call(page)
	default:
		err = proto.DebuggerRemoveBreakpoint{BreakpointID: proto.DebuggerBreakpointID(id)}.Call(page)
	}
	if err != nil && found {
		return nil, rerr.Wrap(rerr.KindCDP, "remove breakpoint", err)
	}
	return ok(map[string]interface{}{"removed": found}), nil
}

func (s *Server) handleListBreakpoints(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]breakpointRecord, 0, len(s.debug.breakpoints))
	for _, rec := range s.debug.breakpoints {
		out = append(out, rec)
	}
	return map[string]interface{}{"breakpoints": out, "count": len(out)}, nil
}

func (s *Server) handlePauseOnExceptions(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := s.requireDebugger(); err != nil {
		return nil, err
	}
	state, err := req.RequireString("state")
	if err != nil || (state != "none" && state != "uncaught" && state != "all") {
		return nil, rerr.New(rerr.KindInvariant, "state must be none, uncaught or all")
	}
	if err := (proto.DebuggerSetPauseOnExceptions{
		State: proto.DebuggerSetPauseOnExceptionsState(state),
	}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "set pause on exceptions", err)
	}
	return ok(nil), nil
}

func (s *Server) handleSetXHRBreakpoint(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := s.requireDebugger(); err != nil {
		return nil, err
	}
	substr, err := req.RequireString("urlSubstring")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: urlSubstring")
	}
	if err := (proto.DOMDebuggerSetXHRBreakpoint{URL: substr}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "set xhr breakpoint", err)
	}
	rec := breakpointRecord{ID: "xhr:" + substr, Kind: "xhr", Target: substr}
	s.mu.Lock()
	s.debug.breakpoints[rec.ID] = rec
	s.mu.Unlock()
	return ok(map[string]interface{}{"breakpointId": rec.ID}), nil
}

func (s *Server) handleSetEventBreakpoint(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := s.requireDebugger(); err != nil {
		return nil, err
	}
	event, err := req.RequireString("eventName")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: eventName")
	}
	if err := (proto.DOMDebuggerSetEventListenerBreakpoint{EventName: event}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "set event breakpoint", err)
	}
	rec := breakpointRecord{ID: "event:" + event, Kind: "event", Target: event}
	s.mu.Lock()
	s.debug.breakpoints[rec.ID] = rec
	s.mu.Unlock()
	return ok(map[string]interface{}{"breakpointId": rec.ID}), nil
}

func (s *Server) handleSetBlackbox(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := s.requireDebugger(); err != nil {
		return nil, err
	}
	raw, err := req.RequireString("patterns")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: patterns")
	}
	var patterns []string
	if err := jsonUnmarshal(raw, &patterns); err != nil {
		return nil, rerr.Wrap(rerr.KindInvariant, "patterns must be a JSON array of strings", err)
	}
	if err := (proto.DebuggerSetBlackboxPatterns{Patterns: patterns}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "set blackbox patterns", err)
	}
	s.mu.Lock()
	s.debug.blackbox = patterns
	s.mu.Unlock()
	return ok(map[string]interface{}{"count": len(patterns)}), nil
}

func (s *Server) handleAddWatch(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	expr, err := req.RequireString("expression")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: expression")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.debug.watches {
		if w == expr {
			return ok(map[string]interface{}{"count": len(s.debug.watches)}), nil
		}
	}
	s.debug.watches = append(s.debug.watches, expr)
	return ok(map[string]interface{}{"count": len(s.debug.watches)}), nil
}

func (s *Server) handleRemoveWatch(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	expr, err := req.RequireString("expression")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: expression")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.debug.watches[:0]
	for _, w := range s.debug.watches {
		if w != expr {
			kept = append(kept, w)
		}
	}
	s.debug.watches = kept
	return ok(map[string]interface{}{"count": len(kept)}), nil
}

func (s *Server) handleEvaluateWatches(ctx context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	watches := make([]string, len(s.debug.watches))
	copy(watches, s.debug.watches)
	s.mu.Unlock()

	results := make(map[string]interface{}, len(watches))
	for _, expr := range watches {
		res, err := proto.RuntimeEvaluate{Expression: expr, ReturnByValue: true}.Call(page.Context(ctx))
		if err != nil {
			results[expr] = map[string]interface{}{"error": err.Error()}
			continue
		}
		results[expr] = remoteObjectResult(res.Result, res.ExceptionDetails)
	}
	return map[string]interface{}{"watches": results}, nil
}

// debuggerSession is the on-disk session shape.
type debuggerSession struct {
	Name        string             `json:"name"`
	SavedAt     time.Time          `json:"savedAt"`
	Breakpoints []breakpointRecord `json:"breakpoints"`
	Watches     []string           `json:"watches"`
	Blackbox    []string           `json:"blackbox,omitempty"`
}

func (s *Server) sessionPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\.") {
		return "", rerr.New(rerr.KindInvariant, "session name must be a bare identifier")
	}
	return filepath.Join(s.cfg.Debugger.SessionDir, name+".json"), nil
}

func (s *Server) handleSessionSave(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: name")
	}
	path, err := s.sessionPath(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	sess := debuggerSession{Name: name, SavedAt: time.Now(), Watches: s.debug.watches, Blackbox: s.debug.blackbox}
	for _, rec := range s.debug.breakpoints {
		sess.Breakpoints = append(sess.Breakpoints, rec)
	}
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, err
	}
	return ok(map[string]interface{}{"path": path, "breakpoints": len(sess.Breakpoints)}), nil
}

func (s *Server) handleSessionLoad(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: name")
	}
	path, err := s.sessionPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no saved session %q: %w", name, err)
	}
	var sess debuggerSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("corrupt session file: %w", err)
	}

	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := s.requireDebugger(); err != nil {
		return nil, err
	}

	restored := 0
	for _, rec := range sess.Breakpoints {
		var rerrSet error
		switch rec.Kind {
		case "xhr":
			rerrSet = proto.DOMDebuggerSetXHRBreakpoint{URL: rec.Target}.Call(page)
		case "event":
			rerrSet = proto.DOMDebuggerSetEventListenerBreakpoint{EventName: rec.Target}.Call(page)
		default:
			res, e := proto.DebuggerSetBreakpointByURL{
				URL:        rec.URL,
				LineNumber: rec.Line - 1,
			}.Call(page)
			rerrSet = e
			if e == nil {
				rec.ID = string(res.BreakpointID)
			}
		}
		if rerrSet != nil {
			continue
		}
		restored++
		s.mu.Lock()
		s.debug.breakpoints[rec.ID] = rec
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.debug.watches = sess.Watches
	s.mu.Unlock()
	if len(sess.Blackbox) > 0 {
		_ = proto.DebuggerSetBlackboxPatterns{Patterns: sess.Blackbox}.Call(page)
	}
	return ok(map[string]interface{}{"restored": restored, "watches": len(sess.Watches)}), nil
}

func (s *Server) handleSessionExport(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: name")
	}
	path, err := s.sessionPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no saved session %q: %w", name, err)
	}
	var sess debuggerSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("corrupt session file: %w", err)
	}
	return sess, nil
}

func (s *Server) handleSessionList(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	entries, err := os.ReadDir(s.cfg.Debugger.SessionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]interface{}{"sessions": []string{}}, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			names = append(names, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	return map[string]interface{}{"sessions": names}, nil
}
