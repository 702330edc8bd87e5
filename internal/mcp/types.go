// Package mcp connects to Model Context Protocol servers and exposes
// their tools through the local tool registry, so streamed tool calls
// resolve to MCP servers the same way they resolve to builtins.
package mcp

import "encoding/json"

// ServerConfig describes one MCP server. A server with a Command runs as
// a stdio child process; a server with a URL is reached over HTTP.
type ServerConfig struct {
	Command     []string          `json:"command,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`

	Disabled       bool `json:"disabled,omitempty"`
	TimeoutSeconds int  `json:"timeout_seconds,omitempty"`
}

// Tool is one tool advertised by a connected server. Name carries the
// server prefix once it leaves the client.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Status is a server's connection state.
type Status string

const (
	StatusConnected Status = "connected"
	StatusDisabled  Status = "disabled"
	StatusFailed    Status = "failed"
)

// ServerStatus reports one server's state for diagnostics.
type ServerStatus struct {
	Name      string  `json:"name"`
	Status    Status  `json:"status"`
	ToolCount int     `json:"tool_count"`
	Error     *string `json:"error,omitempty"`
}
