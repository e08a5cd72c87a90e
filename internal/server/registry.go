package server

import (
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools wires the full tool surface. Adding a tool is one
// AddTool call in its group's file.
func (s *Server) registerTools(srv *mcpserver.MCPServer) {
	s.registerBrowserTools(srv)
	s.registerDOMTools(srv)
	s.registerScriptTools(srv)
	s.registerConsoleTools(srv)
	s.registerNetworkTools(srv)
	s.registerPerfTools(srv)
	s.registerDebuggerTools(srv)
	s.registerAnalysisTools(srv)
	s.registerMetaTools(srv)
}
