// Package mcpserver exposes conduit's local tools over the Model Context
// Protocol, so other MCP clients can call them over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/conduit-ai/conduit/internal/tool"
)

// New builds an MCP server serving every local tool in the registry.
// Direct tools are skipped: they need a connected realtime client.
func New(registry *tool.Registry, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"conduit",
		version,
		server.WithToolCapabilities(true),
	)

	for _, id := range registry.IDs() {
		binding, ok := registry.Lookup(id)
		if !ok || binding.IsDirect() {
			continue
		}
		t := binding.Local
		s.AddTool(
			mcp.NewToolWithRawSchema(t.ID(), t.Description(), t.Parameters()),
			handler(t),
		)
	}

	return s
}

// ServeStdio runs the server on stdin/stdout until the stream closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func handler(t tool.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}

		output, err := t.Execute(ctx, tool.FilterArguments(t.Parameters(), args), &tool.Context{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		text, err := renderOutput(output)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func renderOutput(output any) (string, error) {
	switch v := output.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode tool output: %w", err)
		}
		return string(data), nil
	}
}
