package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type healthResult struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	ExternalSearch bool   `json:"external_search"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// It reports the server version and whether the external image search
// fallback is configured.
func RegisterHealthTool(s *server.MCPServer, version string, externalSearch bool) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and external search availability"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := jsonResult(healthResult{Status: "ok", Version: version, ExternalSearch: externalSearch})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return result, nil
	})
}
