// Package tool provides the tool framework: local tools executed in
// process, direct tools delegated to the connected client, and a registry
// that resolves streamed tool calls to either kind.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is a locally executed tool. Execute returns either a string or a
// JSON-serializable structure; execution failures are returned as errors
// and stringified into the tool result by the caller, never propagated as
// control flow.
type Tool interface {
	// ID returns the tool identifier the model calls it by.
	ID() string

	// Description returns the tool description shown to the model.
	Description() string

	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() json.RawMessage

	// Execute runs the tool.
	Execute(ctx context.Context, args map[string]any, toolCtx *Context) (any, error)
}

// Context carries per-call execution context into tools.
type Context struct {
	ChatID    string
	MessageID string
	CallID    string
	Extra     map[string]any

	// OnStatus reports execution progress for display.
	OnStatus func(status string)
}

// SetStatus reports a progress update if a listener is attached.
func (c *Context) SetStatus(status string) {
	if c.OnStatus != nil {
		c.OnStatus(status)
	}
}

// FilterArguments keeps only the keys the tool's JSON Schema declares as
// properties. Models occasionally invent extra arguments; passing them
// through breaks strict tools.
func FilterArguments(params json.RawMessage, args map[string]any) map[string]any {
	var js struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(params, &js); err != nil || js.Properties == nil {
		return args
	}

	filtered := make(map[string]any, len(args))
	for k, v := range args {
		if _, ok := js.Properties[k]; ok {
			filtered[k] = v
		}
	}
	return filtered
}
