package response

import (
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Builder constructs formatted text for MCP tool results.
type Builder struct {
	sb strings.Builder
}

// New creates a new response Builder.
func New() *Builder {
	return &Builder{}
}

// Header writes a header line with optional formatting arguments.
func (b *Builder) Header(format string, args ...any) *Builder {
	b.sb.WriteString("═══ ")
	b.sb.WriteString(fmt.Sprintf(format, args...))
	b.sb.WriteString(" ═══\n")
	return b
}

// KeyValue writes a key-value pair. Empty string values are skipped.
func (b *Builder) KeyValue(key string, value any) *Builder {
	if s, ok := value.(string); ok && s == "" {
		return b
	}
	b.sb.WriteString(fmt.Sprintf("• %s: %v\n", key, value))
	return b
}

// Item writes an indented list entry.
func (b *Builder) Item(format string, args ...any) *Builder {
	b.sb.WriteString("  → ")
	b.sb.WriteString(fmt.Sprintf(format, args...))
	b.sb.WriteByte('\n')
	return b
}

// Line writes a plain line with optional formatting arguments.
func (b *Builder) Line(format string, args ...any) *Builder {
	b.sb.WriteString(fmt.Sprintf(format, args...))
	b.sb.WriteByte('\n')
	return b
}

// Blank writes an empty line.
func (b *Builder) Blank() *Builder {
	b.sb.WriteByte('\n')
	return b
}

// Build returns the assembled string.
func (b *Builder) Build() string {
	return b.sb.String()
}

// TextResult wraps the text in an MCP CallToolResult.
func (b *Builder) TextResult() *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.sb.String()}},
	}
}

// ErrorResult wraps the text in an MCP CallToolResult flagged as a tool error.
func (b *Builder) ErrorResult() *mcp.CallToolResult {
	res := b.TextResult()
	res.IsError = true
	return res
}
