package server

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"jsrecon/internal/rerr"
	"jsrecon/internal/types"
)

// networkBufferMax bounds the monitor's request ring.
const networkBufferMax = 2000

// bodyPreviewBytes is the auto-truncation bound for response bodies.
const bodyPreviewBytes = 64 * 1024

func (s *Server) registerNetworkTools(srv *mcpserver.MCPServer) {
	srv.AddTool(mcp.NewTool("network_enable",
		mcp.WithDescription("Start the network monitor on the active page"),
	), s.wrap("network_enable", s.handleNetworkEnable))

	srv.AddTool(mcp.NewTool("network_disable",
		mcp.WithDescription("Stop the network monitor; captured requests are kept"),
	), s.wrap("network_disable", s.handleNetworkDisable))

	srv.AddTool(mcp.NewTool("network_get_status",
		mcp.WithDescription("Monitor state and captured-request count"),
	), s.wrap("network_get_status", s.handleNetworkStatus))

	srv.AddTool(mcp.NewTool("network_get_requests",
		mcp.WithDescription("List captured requests; large results return a detail token"),
		mcp.WithString("urlPattern", mcp.Description("Substring filter on the URL")),
		mcp.WithNumber("limit", mcp.Description("Max entries (default 100)")),
	), s.wrap("network_get_requests", s.handleNetworkRequests))

	srv.AddTool(mcp.NewTool("network_get_response_body",
		mcp.WithDescription("Fetch one response body (auto-truncated with a summary option)"),
		mcp.WithString("requestId", mcp.Required()),
		mcp.WithBoolean("summaryOnly", mcp.Description("Return size and preview only")),
	), s.wrap("network_get_response_body", s.handleResponseBody))

	srv.AddTool(mcp.NewTool("network_get_stats",
		mcp.WithDescription("Aggregate captured-traffic statistics"),
	), s.wrap("network_get_stats", s.handleNetworkStats))
}

// startNetworkMonitor installs the subscriber; also used by
// page_navigate's enableNetworkMonitor option.
func (s *Server) startNetworkMonitor(page *rod.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.network.enabled {
		return nil
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return rerr.Wrap(rerr.KindCDP, "Network.enable", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.network.detach = cancel
	eventPage := page.Context(ctx)
	go eventPage.EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			req := types.CollectedRequest{
				RequestID: string(ev.RequestID),
				URL:       ev.Request.URL,
				Method:    ev.Request.Method,
				PostData:  ev.Request.PostData,
				Timestamp: time.Now(),
			}
			req.Headers = make(map[string]string, len(ev.Request.Headers))
			for k, v := range ev.Request.Headers {
				req.Headers[k] = v.String()
			}
			s.mu.Lock()
			s.network.requests = ringAppend(s.network.requests, req, networkBufferMax)
			s.mu.Unlock()
		},
		func(ev *proto.NetworkResponseReceived) {
			s.mu.Lock()
			for i := len(s.network.requests) - 1; i >= 0; i-- {
				if s.network.requests[i].RequestID == string(ev.RequestID) {
					s.network.requests[i].Status = ev.Response.Status
					s.network.requests[i].MIME = ev.Response.MIMEType
					break
				}
			}
			s.mu.Unlock()
		},
	)()

	s.network.enabled = true
	return nil
}

// detachMonitors stops console and network subscribers; called on
// browser close.
func (s *Server) detachMonitors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.console.detach != nil {
		s.console.detach()
		s.console.detach = nil
	}
	s.console.enabled = false
	if s.network.detach != nil {
		s.network.detach()
		s.network.detach = nil
	}
	s.network.enabled = false
	if s.debug.detach != nil {
		s.debug.detach()
		s.debug.detach = nil
	}
	s.debug.enabled = false
}

func (s *Server) handleNetworkEnable(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := s.startNetworkMonitor(page); err != nil {
		return nil, err
	}
	return ok(nil), nil
}

func (s *Server) handleNetworkDisable(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.network.detach != nil {
		s.network.detach()
		s.network.detach = nil
	}
	s.network.enabled = false
	return ok(map[string]interface{}{"captured": len(s.network.requests)}), nil
}

func (s *Server) handleNetworkStatus(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"enabled":  s.network.enabled,
		"captured": len(s.network.requests),
	}, nil
}

func (s *Server) handleNetworkRequests(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	pattern := req.GetString("urlPattern", "")
	limit := argInt(req, "limit", 100)

	all := s.networkRequests()
	out := make([]types.CollectedRequest, 0, limit)
	for _, r := range all {
		if pattern != "" && !containsFold(r.URL, pattern) {
			continue
		}
		// Bodies never ride along in listings.
		r.Body = ""
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return map[string]interface{}{"requests": out, "total": len(all)}, nil
}

// networkRequests merges the monitor ring with the collector's own
// request log.
func (s *Server) networkRequests() []types.CollectedRequest {
	s.mu.Lock()
	monitored := make([]types.CollectedRequest, len(s.network.requests))
	copy(monitored, s.network.requests)
	s.mu.Unlock()

	seen := make(map[string]bool, len(monitored))
	for _, r := range monitored {
		seen[r.RequestID] = true
	}
	for _, r := range s.collector.Requests() {
		if !seen[r.RequestID] {
			monitored = append(monitored, r)
		}
	}
	return monitored
}

func (s *Server) handleResponseBody(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	requestID, err := req.RequireString("requestId")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: requestId")
	}

	res, err := proto.NetworkGetResponseBody{RequestID: proto.NetworkRequestID(requestID)}.Call(page)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "body unavailable for "+requestID, err).
			WithHint("bodies are only retrievable while the page session that produced them is alive")
	}

	body := res.Body
	truncated := false
	if len(body) > bodyPreviewBytes {
		body = body[:bodyPreviewBytes]
		truncated = true
	}
	out := map[string]interface{}{
		"requestId": requestID,
		"base64":    res.Base64Encoded,
		"size":      len(res.Body),
		"truncated": truncated,
	}
	if req.GetBool("summaryOnly", false) {
		out["preview"] = body[:min(len(body), 500)]
	} else {
		out["body"] = body
	}
	return out, nil
}

func (s *Server) handleNetworkStats(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	all := s.networkRequests()
	byMethod := make(map[string]int)
	byStatus := make(map[int]int)
	byMIME := make(map[string]int)
	for _, r := range all {
		byMethod[r.Method]++
		if r.Status != 0 {
			byStatus[r.Status]++
		}
		if r.MIME != "" {
			byMIME[r.MIME]++
		}
	}
	return map[string]interface{}{
		"total":    len(all),
		"byMethod": byMethod,
		"byStatus": byStatus,
		"byMime":   byMIME,
	}, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
