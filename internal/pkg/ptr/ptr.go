// Package ptr provides pointer helpers for optional MCP annotation fields.
package ptr

// Bool returns a pointer to the given bool value.
func Bool(b bool) *bool { return &b }
