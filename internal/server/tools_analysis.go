package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"jsrecon/internal/analysis/deobfuscate"
	"jsrecon/internal/analysis/obfuscation"
	"jsrecon/internal/envsim"
	"jsrecon/internal/rerr"
)

func (s *Server) registerAnalysisTools(srv *mcpserver.MCPServer) {
	srv.AddTool(mcp.NewTool("analyze_obfuscation",
		mcp.WithDescription("Classify a script across the known obfuscation families"),
		mcp.WithString("source", mcp.Description("Script text; omit to use a collected file")),
		mcp.WithString("url", mcp.Description("Collected file URL when source is omitted")),
	), s.wrap("analyze_obfuscation", s.handleAnalyzeObfuscation))

	srv.AddTool(mcp.NewTool("deobfuscate_code",
		mcp.WithDescription("Run the full deobfuscation pipeline over a script"),
		mcp.WithString("source", mcp.Description("Script text; omit to use a collected file")),
		mcp.WithString("url", mcp.Description("Collected file URL when source is omitted")),
		mcp.WithBoolean("aggressive", mcp.Description("Enable unflattening and VM stubbing")),
		mcp.WithBoolean("rename", mcp.Description("Rename mangled identifiers to var_N")),
	), s.wrap("deobfuscate_code", s.handleDeobfuscate))

	srv.AddTool(mcp.NewTool("taint_analyze",
		mcp.WithDescription("Trace untrusted data flows from sources to sinks"),
		mcp.WithString("source", mcp.Description("Script text; omit to use a collected file")),
		mcp.WithString("url", mcp.Description("Collected file URL when source is omitted")),
	), s.wrap("taint_analyze", s.handleTaintAnalyze))

	srv.AddTool(mcp.NewTool("analyze_crypto_patterns",
		mcp.WithDescription("Recognize encryption, signature, token and anti-debug patterns in captured traffic and logs"),
	), s.wrap("analyze_crypto_patterns", s.handleCryptoPatterns))

	srv.AddTool(mcp.NewTool("generate_env_code",
		mcp.WithDescription("Detect browser globals a script touches and emit a runtime shim"),
		mcp.WithString("source", mcp.Description("Script text; omit to use a collected file")),
		mcp.WithString("url", mcp.Description("Collected file URL when source is omitted")),
		mcp.WithString("targetRuntime", mcp.Description("nodejs | python | both (default nodejs)")),
		mcp.WithBoolean("autoFetch", mcp.Description("Overlay live values from the active page")),
		mcp.WithBoolean("includeComments"),
		mcp.WithNumber("extractDepth"),
	), s.wrap("generate_env_code", s.handleGenerateEnv))
}

// resolveSource takes inline source or a collected-file URL.
func (s *Server) resolveSource(req mcp.CallToolRequest) (string, error) {
	if src := req.GetString("source", ""); src != "" {
		return src, nil
	}
	url := req.GetString("url", "")
	if url == "" {
		return "", rerr.New(rerr.KindInvariant, "provide source or url").
			WithHint("pass script text in source, or a collected file URL in url")
	}
	file := s.collector.GetFileByURL(url)
	if file == nil {
		return "", rerr.New(rerr.KindInvariant, "no collected file for "+url).
			WithHint("run collect_scripts first")
	}
	return file.Source, nil
}

func (s *Server) handleAnalyzeObfuscation(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	source, err := s.resolveSource(req)
	if err != nil {
		return nil, err
	}
	return obfuscation.Detect(source), nil
}

func (s *Server) handleDeobfuscate(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	source, err := s.resolveSource(req)
	if err != nil {
		return nil, err
	}
	return s.deob.Deobfuscate(ctx, source, deobfuscate.Options{
		Aggressive: req.GetBool("aggressive", false),
		Rename:     req.GetBool("rename", false),
	}), nil
}

func (s *Server) handleTaintAnalyze(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	source, err := s.resolveSource(req)
	if err != nil {
		return nil, err
	}
	return s.taint.Analyze(ctx, source)
}

func (s *Server) handleCryptoPatterns(ctx context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	return s.crypto.Analyze(ctx, s.networkRequests(), s.consoleLogs()), nil
}

func (s *Server) handleGenerateEnv(ctx context.Context, req mcp.CallToolRequest) (interface{}, error) {
	source, err := s.resolveSource(req)
	if err != nil {
		return nil, err
	}

	var page envsim.PageEvaluator
	if req.GetBool("autoFetch", false) {
		active := s.collector.GetActivePage()
		if active == nil {
			return nil, rerr.New(rerr.KindInvariant, "autoFetch needs an active page").
				WithHint("navigate to the target site first, or drop autoFetch")
		}
		page = &pageEvaluator{page: active}
	}

	synth := envsim.New(s.model, page)
	return synth.Analyze(ctx, envsim.Request{
		Source:          source,
		TargetRuntime:   req.GetString("targetRuntime", envsim.RuntimeNodeJS),
		AutoFetch:       page != nil,
		IncludeComments: req.GetBool("includeComments", false),
		ExtractDepth:    argInt(req, "extractDepth", 0),
	})
}
