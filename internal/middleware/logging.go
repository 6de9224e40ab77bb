package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// LoggingMiddleware returns MCP SDK middleware that logs incoming requests
// and outgoing responses using structured logging.
func LoggingMiddleware(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			attrs := []any{"method", method}
			if tool := toolName(req); tool != "" {
				attrs = append(attrs, "tool", tool)
			}
			logger.InfoContext(ctx, "handling request", attrs...)

			result, err := next(ctx, method, req)

			attrs = append(attrs, "duration", time.Since(start))
			if err != nil {
				logger.ErrorContext(ctx, "request failed", append(attrs, "error", err)...)
			} else {
				if tr, ok := result.(*mcp.CallToolResult); ok && tr != nil && tr.IsError {
					attrs = append(attrs, "tool_error", true)
				}
				logger.InfoContext(ctx, "request completed", attrs...)
			}

			return result, err
		}
	}
}

// toolName returns the tool being called, or "" for other methods.
func toolName(req mcp.Request) string {
	if req == nil {
		return ""
	}
	params, ok := req.GetParams().(*mcp.CallToolParamsRaw)
	if !ok || params == nil {
		return ""
	}
	return params.Name
}
