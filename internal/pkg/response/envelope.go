package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the plain JSON reply for direct (non tool-call) webhook requests.
type Envelope struct {
	OK      bool              `json:"ok"`
	Message string            `json:"message"`
	Link    string            `json:"link,omitempty"`
	AuthURL string            `json:"authUrl,omitempty"`
	Missing []string          `json:"missing,omitempty"`
	Invalid map[string]string `json:"invalid,omitempty"`
	Data    any               `json:"data,omitempty"`
}

// ToolResult is one entry of a tool-call reply. Result carries the text the
// voice agent reads back; Error is set instead when the call failed.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ToolResults is the reply shape expected by tool-calling platforms.
type ToolResults struct {
	Results []ToolResult `json:"results"`
}

// WriteJSON encodes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing JSON response", "status", status, "error", err)
	}
}
