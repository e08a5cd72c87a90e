package server

import (
	"context"

	"github.com/go-rod/rod/lib/proto"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"jsrecon/internal/rerr"
)

func (s *Server) registerPerfTools(srv *mcpserver.MCPServer) {
	srv.AddTool(mcp.NewTool("coverage_start",
		mcp.WithDescription("Start precise JS coverage collection"),
	), s.wrap("coverage_start", s.handleCoverageStart))

	srv.AddTool(mcp.NewTool("coverage_stop",
		mcp.WithDescription("Stop coverage collection and return per-script usage"),
	), s.wrap("coverage_stop", s.handleCoverageStop))

	srv.AddTool(mcp.NewTool("heap_snapshot",
		mcp.WithDescription("Report JS heap usage for the active page"),
	), s.wrap("heap_snapshot", s.handleHeapSnapshot))
}

func (s *Server) handleCoverageStart(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	if err := (proto.ProfilerEnable{}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "Profiler.enable", err)
	}
	_, err = proto.ProfilerStartPreciseCoverage{CallCount: true, Detailed: true}.Call(page)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "start coverage", err)
	}
	return ok(nil), nil
}

func (s *Server) handleCoverageStop(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	res, err := proto.ProfilerTakePreciseCoverage{}.Call(page)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "take coverage", err).
			WithHint("call coverage_start before coverage_stop")
	}
	if err := (proto.ProfilerStopPreciseCoverage{}).Call(page); err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "stop coverage", err)
	}

	type scriptCoverage struct {
		URL          string  `json:"url"`
		TotalBytes   int     `json:"totalBytes"`
		UsedBytes    int     `json:"usedBytes"`
		UsedFraction float64 `json:"usedFraction"`
	}
	out := make([]scriptCoverage, 0, len(res.Result))
	for _, sc := range res.Result {
		if sc.URL == "" {
			continue
		}
		total, used := 0, 0
		for _, fn := range sc.Functions {
			for _, r := range fn.Ranges {
				span := r.EndOffset - r.StartOffset
				if span > total {
					total = span
				}
				if r.Count > 0 {
					used += span
				}
			}
		}
		cov := scriptCoverage{URL: sc.URL, TotalBytes: total, UsedBytes: used}
		if total > 0 {
			if used > total {
				used = total
			}
			cov.UsedBytes = used
			cov.UsedFraction = float64(used) / float64(total)
		}
		out = append(out, cov)
	}
	return map[string]interface{}{"scripts": out, "count": len(out)}, nil
}

func (s *Server) handleHeapSnapshot(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	page, err := s.activePage()
	if err != nil {
		return nil, err
	}
	res, err := proto.RuntimeGetHeapUsage{}.Call(page)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindCDP, "heap usage", err)
	}
	return map[string]interface{}{
		"usedSize":  res.UsedSize,
		"totalSize": res.TotalSize,
	}, nil
}
