package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"jsrecon/internal/rerr"
)

func (s *Server) registerMetaTools(srv *mcpserver.MCPServer) {
	srv.AddTool(mcp.NewTool("get_detailed_data",
		mcp.WithDescription("Retrieve a stored oversized result by detail token, optionally path-indexed"),
		mcp.WithString("detailId", mcp.Required()),
		mcp.WithString("path", mcp.Description("Dot path into the stored value, numeric segments index arrays")),
	), s.wrapRaw("get_detailed_data", s.handleGetDetailedData))

	srv.AddTool(mcp.NewTool("get_token_budget_stats",
		mcp.WithDescription("Snapshot of the session token-budget ledger"),
	), s.wrap("get_token_budget_stats", s.handleBudgetStats))

	srv.AddTool(mcp.NewTool("manual_token_cleanup",
		mcp.WithDescription("Drop aged budget records and expired detail tokens"),
	), s.wrap("manual_token_cleanup", s.handleBudgetCleanup))

	srv.AddTool(mcp.NewTool("reset_token_budget",
		mcp.WithDescription("Zero the budget ledger and unlatch all warnings"),
	), s.wrap("reset_token_budget", s.handleBudgetReset))
}

func (s *Server) handleGetDetailedData(_ context.Context, req mcp.CallToolRequest) (interface{}, error) {
	id, err := req.RequireString("detailId")
	if err != nil {
		return nil, rerr.New(rerr.KindInvariant, "missing required argument: detailId")
	}
	return s.details.Retrieve(id, req.GetString("path", ""))
}

func (s *Server) handleBudgetStats(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	return s.ledger.Snapshot(), nil
}

func (s *Server) handleBudgetCleanup(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	records := s.ledger.Cleanup()
	tokens := s.details.Cleanup()
	return ok(map[string]interface{}{
		"droppedRecords": records,
		"expiredTokens":  tokens,
	}), nil
}

func (s *Server) handleBudgetReset(_ context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	s.ledger.Reset()
	return ok(nil), nil
}
