package mcp

import (
	"context"
	"encoding/json"

	"github.com/conduit-ai/conduit/internal/tool"
)

// serverTool adapts one MCP tool to the local tool interface so the
// session's tool loop can call it like any builtin.
type serverTool struct {
	meta   Tool
	client *Client
}

func (t *serverTool) ID() string          { return t.meta.Name }
func (t *serverTool) Description() string { return t.meta.Description }

func (t *serverTool) Parameters() json.RawMessage {
	if len(t.meta.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return t.meta.InputSchema
}

func (t *serverTool) Execute(ctx context.Context, args map[string]any, toolCtx *tool.Context) (any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	toolCtx.SetStatus("calling " + t.meta.Name)
	return t.client.Execute(ctx, t.meta.Name, raw)
}

// RegisterTools registers every tool from connected servers into the
// registry under its prefixed name.
func RegisterTools(client *Client, registry *tool.Registry) {
	if client == nil || registry == nil {
		return
	}
	for _, meta := range client.Tools() {
		registry.Register(&serverTool{meta: meta, client: client})
	}
}
