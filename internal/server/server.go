// Package server is the tool dispatcher: it owns the browser-driving
// collector, the detail-token store and the budget ledger, registers
// every tool handler, and applies the cross-cutting concerns (smart
// handling of oversized results, budget recording, uniform failure
// shapes) around each call.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"jsrecon/internal/analysis/crypto"
	"jsrecon/internal/analysis/deobfuscate"
	"jsrecon/internal/analysis/taint"
	"jsrecon/internal/budget"
	"jsrecon/internal/cache"
	"jsrecon/internal/collector"
	"jsrecon/internal/compress"
	"jsrecon/internal/config"
	"jsrecon/internal/detail"
	"jsrecon/internal/logging"
	"jsrecon/internal/model"
	"jsrecon/internal/rerr"
	"jsrecon/internal/types"
)

// defaultCallTimeout bounds any single tool call.
const defaultCallTimeout = 120 * time.Second

// Server owns the session-scoped subsystems. One server serves one
// agent session over stdio.
type Server struct {
	cfg       *config.Config
	version   string
	collector *collector.Collector
	details   *detail.Store
	ledger    *budget.Ledger
	model     model.Client // nil when no key is configured
	deob      *deobfuscate.Deobfuscator
	taint     *taint.Analyzer
	crypto    *crypto.Engine

	mu      sync.Mutex
	console consoleState
	network networkState
	debug   debugState

	sweepStop chan struct{}
}

// handler is the uniform tool contract: args in, JSON-serializable
// result out.
type handler func(ctx context.Context, req mcp.CallToolRequest) (interface{}, error)

// New assembles a server from config.
func New(cfg *config.Config, version string) (*Server, error) {
	store, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	comp, err := compress.New(cfg.Compress)
	if err != nil {
		return nil, err
	}

	var mdl model.Client
	if cfg.LLM.Enabled() {
		mdl, err = model.New(cfg.LLM)
		if err != nil {
			logging.BootError("model adapter unavailable: %v", err)
			mdl = nil
		}
	}

	s := &Server{
		cfg:       cfg,
		version:   version,
		collector: collector.New(cfg.Collector, cfg.Browser, store, comp),
		details:   detail.NewStore(0),
		ledger:    budget.NewLedger(cfg.Budget),
		model:     mdl,
		deob:      deobfuscate.New(mdl),
		taint:     taint.New(mdl),
		crypto:    crypto.New(mdl),
		sweepStop: make(chan struct{}),
	}
	s.debug.breakpoints = make(map[string]breakpointRecord)
	return s, nil
}

// Serve runs the MCP server on stdio until the client disconnects.
func (s *Server) Serve() error {
	srv := mcpserver.NewMCPServer(
		"jsrecon",
		s.version,
		mcpserver.WithRecovery(),
		mcpserver.WithToolCapabilities(false),
	)
	s.registerTools(srv)

	// Expired detail tokens are swept in the background.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.details.Cleanup()
			case <-s.sweepStop:
				return
			}
		}
	}()
	defer s.Shutdown(context.Background())

	logging.Boot("serving MCP on stdio")
	return mcpserver.ServeStdio(srv)
}

// Shutdown closes the browser and stops background work. Cleanup never
// short-circuits: every step runs regardless of earlier failures.
func (s *Server) Shutdown(ctx context.Context) {
	select {
	case <-s.sweepStop:
	default:
		close(s.sweepStop)
	}
	if err := s.collector.Close(ctx); err != nil {
		logging.ToolsWarn("collector close: %v", err)
	}
	logging.CloseAll()
}

// detailThreshold is the smart-handle cutoff in bytes.
func (s *Server) detailThreshold() int {
	kb := s.cfg.Budget.DetailMaxKB
	if kb <= 0 {
		kb = 50
	}
	return kb * 1024
}

// wrap applies the cross-cutting concerns around a handler: per-call
// timeout, failure shaping, smart handling of oversized results and
// budget recording. Every byte that leaves the dispatcher is recorded.
func (s *Server) wrap(name string, fn handler) mcpserver.ToolHandlerFunc {
	return s.wrapWith(name, fn, true)
}

// wrapRaw skips smart handling; get_detailed_data must return the
// stored value itself, not another token.
func (s *Server) wrapRaw(name string, fn handler) mcpserver.ToolHandlerFunc {
	return s.wrapWith(name, fn, false)
}

func (s *Server) wrapWith(name string, fn handler, smart bool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()

		timer := logging.StartTimer(logging.CategoryTools, name)
		result, err := fn(ctx, req)
		timer.StopWithThreshold(10 * time.Second)

		if err == nil && ctx.Err() != nil {
			err = rerr.Wrap(rerr.KindTimeout, name+" timed out", ctx.Err())
		}
		if err != nil {
			logging.ToolsWarn("%s failed: %v", name, err)
			return s.failure(name, err), nil
		}

		handled := result
		if smart {
			handled = s.details.SmartHandle(result, s.detailThreshold())
		}
		data, merr := json.Marshal(handled)
		if merr != nil {
			return s.failure(name, rerr.Wrap(rerr.KindInvariant, "result not serializable", merr)), nil
		}
		s.ledger.Record(name, len(data))
		return mcp.NewToolResultText(string(data)), nil
	}
}

// failure renders the uniform error shape: a short reason, an
// actionable hint when available, and the error kind for retry logic.
func (s *Server) failure(tool string, err error) *mcp.CallToolResult {
	payload := map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	}
	if kind := rerr.KindOf(err); kind != "" {
		payload["kind"] = string(kind)
	}
	if hint := rerr.HintOf(err); hint != "" {
		payload["hint"] = hint
	}
	data, merr := json.Marshal(payload)
	if merr != nil {
		data = []byte(`{"success":false,"error":"internal failure"}`)
	}
	s.ledger.Record(tool, len(data))
	return mcp.NewToolResultText(string(data))
}

// ok is the uniform success envelope for side-effect tools.
func ok(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["success"] = true
	return fields
}

// consoleState buffers captured console traffic per session.
type consoleState struct {
	enabled    bool
	logs       []types.ConsoleLog
	exceptions []types.PageException
	detach     func()
}

// networkState buffers observed requests when the monitor is on.
type networkState struct {
	enabled  bool
	requests []types.CollectedRequest
	detach   func()
}

// breakpointRecord remembers one installed breakpoint.
type breakpointRecord struct {
	ID     string `json:"id"`
	URL    string `json:"url,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Kind   string `json:"kind"` // line, xhr, event, exception
	Target string `json:"target,omitempty"`
}

// debugState tracks the CDP debugger session.
type debugState struct {
	enabled     bool
	paused      bool
	pausedInfo  interface{} // last Debugger.paused payload
	pausedCh    chan struct{}
	breakpoints map[string]breakpointRecord
	watches     []string
	blackbox    []string
	detach      func()
}

// ringAppend keeps the newest max entries.
func ringAppend[T any](buf []T, v T, max int) []T {
	buf = append(buf, v)
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}
