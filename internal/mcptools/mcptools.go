// Package mcptools exposes event creation and the consent link as MCP tools.
package mcptools

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/evert/calendar-webhook-go/internal/auth"
	"github.com/evert/calendar-webhook-go/internal/middleware"
	"github.com/evert/calendar-webhook-go/internal/submit"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "calendar-webhook"

// toolNameRE enforces SEP-986: tool names must match ^[a-zA-Z0-9_-]{1,64}$
var toolNameRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateToolName checks that a tool name complies with SEP-986.
func ValidateToolName(name string) error {
	if !toolNameRE.MatchString(name) {
		return fmt.Errorf("tool name %q does not match SEP-986 pattern ^[a-zA-Z0-9_-]{1,64}$", name)
	}
	return nil
}

var serviceIcons = []mcp.Icon{{
	Source:   "https://www.gstatic.com/images/branding/product/1x/calendar_2020q4_48dp.png",
	MIMEType: "image/png",
	Sizes:    []string{"48x48"},
}}

// NewServer creates an MCP server with the calendar tools registered and the
// logging and auth-enhancer middleware installed. creds may be nil when the
// provider has no consent flow; the authorize tool is then omitted.
func NewServer(version string, svc *submit.Service, creds auth.Credentials, logger *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: version,
	}, nil)

	server.AddReceivingMiddleware(middleware.LoggingMiddleware(logger))
	if creds != nil {
		server.AddReceivingMiddleware(middleware.AuthEnhancerMiddleware(creds))
	}

	registerEventTools(server, svc)
	slog.Info("registered tools", "group", "events")
	if creds != nil {
		registerAuthTools(server, creds)
		slog.Info("registered tools", "group", "auth")
	}
	return server
}

// Handler serves server over the streamable HTTP transport.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

func addTool[In any](server *mcp.Server, tool *mcp.Tool, h mcp.ToolHandlerFor[In, any]) {
	if err := ValidateToolName(tool.Name); err != nil {
		panic(err)
	}
	mcp.AddTool(server, tool, h)
}
