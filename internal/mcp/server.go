// Package mcp exposes the engine as MCP tools and forwards confirmed
// external actions to other MCP servers.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/mcp/tools"
)

// ServerName is reported to MCP clients
const ServerName = "steward"

// NewServer creates an MCP server with every tool deps can support
func NewServer(version string, deps *tools.Dependencies) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
	)
	tools.RegisterAll(s, deps)
	return s
}

// ServeStdio runs s on stdin/stdout until EOF
func ServeStdio(s *server.MCPServer) error {
	logging.Info("mcp", "Server starting on stdio")
	return server.ServeStdio(s)
}
