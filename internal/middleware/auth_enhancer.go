package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/evert/calendar-webhook-go/internal/auth"
)

// authErrorMarkers are substrings that identify auth-related tool errors.
var authErrorMarkers = []string{
	"not authorized",
	"credentials were rejected",
	"open /authorize",
}

// AuthEnhancerMiddleware returns MCP SDK middleware that detects auth-related
// tool errors and appends the consent URL so the operator can authorize
// without an extra round-trip.
func AuthEnhancerMiddleware(creds auth.Credentials) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			result, err := next(ctx, method, req)

			// Only enhance tools/call responses.
			if method != "tools/call" {
				return result, err
			}

			toolResult, ok := result.(*mcp.CallToolResult)
			if !ok || toolResult == nil || !toolResult.IsError || len(toolResult.Content) == 0 {
				return result, err
			}

			textContent, ok := toolResult.Content[0].(*mcp.TextContent)
			if !ok || !isAuthRelatedError(textContent.Text) {
				return result, err
			}

			authURL := creds.AuthURL(auth.DefaultState)
			if authURL == "" || strings.Contains(textContent.Text, authURL) {
				return result, err
			}
			textContent.Text = fmt.Sprintf(
				"%s\n\nAuthorize calendar access by visiting this URL:\n%s",
				textContent.Text, authURL,
			)

			return result, err
		}
	}
}

// isAuthRelatedError returns true if the text contains any auth-error marker.
func isAuthRelatedError(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range authErrorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
