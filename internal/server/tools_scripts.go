package server

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"jsrecon/internal/collector"
	"jsrecon/internal/rerr"
)

func (s *Server) registerScriptTools(srv *mcpserver.MCPServer) {
	srv.AddTool(mcp.NewTool("collect_scripts",
		mcp.WithDescription("Harvest scripts from a URL: external, inline, service workers, web workers"),
		mcp.WithString("url", mcp.Required()),
		mcp.WithBoolean("includeInline", mcp.Description("Pull inline <script> bodies (default true)")),
		mcp.WithBoolean("includeServiceWorker"),
		mcp.WithBoolean("includeWebWorker"),
		mcp.WithBoolean("includeDynamic", mcp.Description("Dwell after network idle for late scripts")),
		mcp.WithString("smartMode", mcp.Description("filter | summary")),
		mcp.WithBoolean("compress"),
		mcp.WithNumber("maxTotalSize"),
		mcp.WithNumber("maxFileSize"),
		mcp.WithNumber("timeoutMs"),
		mcp.WithArray("priorities", mcp.Description("Extra URL keywords boosted by smart selection")),
	), s.wrap("collect_scripts", s.handleCollectScripts))

	srv.AddTool(mcp.NewTool("get_all_scripts",
		mcp.WithDescription("Summarize every collected script (url, size, type, truncation)"),
	), s.wrap("get_all_scripts", s.handleGetAllScripts))

	srv.AddTool(mcp.NewTool("get_script_source",
		mcp.WithDescription("Return one collected script's source, optionally a line range"),
		mcp.WithString("url", mcp.Required()),
		mcp.WithNumber("startLine", mcp.Description("1-based preview start")),
		mcp.WithNumber("endLine", mcp.Description("1-based preview end (inclusive)")),
	), s.wrap("get_script_source", s.handleGetScriptSource))

	srv.AddTool(mcp.NewTool("get_files_by_pattern",
		mcp.WithDescription("Collected files whose URL matches a regex, within count and size caps"),
		mcp.WithString("pattern", mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Max files (default 10)")),
		mcp.WithNumber("maxTotalSize"),
	), s.wrap("get_files_by_pattern", s.handleGetFilesByPattern))

	srv.AddTool(mcp.NewTool("get_top_priority_files",
		mcp.WithDescription("Highest-priority collected files within a size budget"),
		mcp.WithNumber("topN", mcp.Description("Max files (default 5)")),
		mcp.WithNumber("maxTotalSize"),
	), s.wrap("get_top_priority_files", s.handleGetTopPriority))

	srv.AddTool(mcp.NewTool("clear_collected_data",
		mcp.WithDescription("Drop every collected buffer and flush the script cache"),
	), s.wrap("clear_collected_data", s.handleClearCollected))
}

func (s *Server) handleCollectScripts(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: url")
	}

	opts := collector.Options{
		IncludeInline:        req.GetBool("includeInline", true),
		IncludeServiceWorker: req.GetBool("includeServiceWorker", false),
		IncludeWebWorker:     req.GetBool("includeWebWorker", false),
		IncludeDynamic:       req.GetBool("includeDynamic", false),
		SmartMode:            req.GetString("smartMode", ""),
		Compress:             req.GetBool("compress", false),
		MaxTotalSize:         argInt(req, "maxTotalSize", 0),
		MaxFileSize:          argInt(req, "maxFileSize", 0),
		TimeoutMs:            argInt(req, "timeoutMs", 0),
		Priorities:           argStrings(req, "priorities"),
	}
	if opts.SmartMode != "" && opts.SmartMode != "filter" && opts.SmartMode != "summary" {
		return nil, rerr.New(rerr.KindInvariant, "smartMode must be filter or summary")
	}
	return s.collector.Collect(ctx, url, opts)
}

func (s *Server) handleGetAllScripts(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	sum := s.collector.GetCollectedFilesSummary()
	return map[string]interface{}{"scripts": sum, "count": len(sum)}, nil
}

func (s *Server) handleGetScriptSource(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: url")
	}
	file := s.collector.GetFileByURL(url)
	if file == nil {
		return nil, rerr.New(rerr.KindInvariant, "no collected file for "+url).
			WithHint("run collect_scripts first, then list candidates with get_all_scripts")
	}

	start := argInt(req, "startLine", 0)
	end := argInt(req, "endLine", 0)
	source := file.Source
	totalLines := strings.Count(source, "\n") + 1
	preview := false

	if start > 0 {
		lines := strings.Split(source, "\n")
		if start > len(lines) {
			return nil, rerr.New(rerr.KindInvariant, "startLine beyond end of file")
		}
		if end <= 0 || end > len(lines) {
			end = len(lines)
		}
		source = strings.Join(lines[start-1:end], "\n")
		preview = true
	}

	return map[string]interface{}{
		"url":        file.URL,
		"kind":       file.Kind,
		"size":       file.Size,
		"truncated":  file.Truncated,
		"totalLines": totalLines,
		"preview":    preview,
		"source":     source,
	}, nil
}

func (s *Server) handleGetFilesByPattern(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	pattern, err := req.RequireString("pattern")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: pattern")
	}
	limit := argInt(req, "limit", 10)
	maxTotal := argInt(req, "maxTotalSize", 0)

	res, err := s.collector.GetFilesByPattern(pattern, limit, maxTotal)
	if err != nil {
		return nil, rerr.Wrap(rerr.KindInvariant, "invalid pattern", err)
	}
	return res, nil
}

func (s *Server) handleGetTopPriority(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	topN := argInt(req, "topN", 5)
	maxTotal := argInt(req, "maxTotalSize", 0)
	files := s.collector.GetTopPriorityFiles(topN, maxTotal)
	return map[string]interface{}{"files": files, "count": len(files)}, nil
}

func (s *Server) handleClearCollected(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	if err := s.collector.ClearAllData(); err != nil {
		return nil, err
	}
	return ok(nil), nil
}
