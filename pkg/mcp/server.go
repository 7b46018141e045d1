package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/middleware"
)

// Server wraps the mcp-go MCPServer with sign-engine patterns.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// instructions is sent to MCP clients on initialize.
const instructions = "Resolve Japanese road signs to images. " +
	"Use extract_sign_code to read a sign number out of a question, match_sign_code for an exact code, " +
	"and resolve_sign_image for anything else. Results with low_confidence come from a web image search " +
	"and should be shown with their source."

// NewServer creates a new MCP server instance. Panics inside tool handlers
// are recovered and reported as tool errors.
func NewServer(name, version string, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// Handler returns the streamable HTTP transport wrapped with tool-call logging.
func (s *Server) Handler() http.Handler {
	return middleware.MCPRequestLogger(s.logger)(s.NewStreamableHTTPServer())
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
