package mcpserver

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-ai/conduit/internal/tool"
)

func callTool(t *testing.T, target tool.Tool, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	request := mcp.CallToolRequest{}
	request.Params.Name = target.ID()
	request.Params.Arguments = args

	result, err := handler(target)(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestHandlerExecutesCalculator(t *testing.T) {
	result := callTool(t, tool.NewCalculatorTool(), map[string]any{
		"operation": "add",
		"a":         float64(2),
		"b":         float64(3),
	})

	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"result": 5`)
}

func TestHandlerReturnsToolErrorsAsResults(t *testing.T) {
	result := callTool(t, tool.NewCalculatorTool(), map[string]any{
		"operation": "divide",
		"a":         float64(1),
		"b":         float64(0),
	})

	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "division by zero")
}

func TestHandlerDropsUndeclaredArguments(t *testing.T) {
	result := callTool(t, tool.NewCalculatorTool(), map[string]any{
		"operation": "multiply",
		"a":         float64(4),
		"b":         float64(2),
		"invented":  "by the model",
	})

	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"result": 8`)
}

func TestNewSkipsDirectTools(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(tool.NewCalculatorTool())
	registry.RegisterDirect([]tool.DirectSpec{{Name: "client_side"}})

	s := New(registry, "test")
	require.NotNil(t, s)
}

func TestRenderOutput(t *testing.T) {
	text, err := renderOutput("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", text)

	text, err = renderOutput(map[string]any{"result": float64(5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result": 5}`, text)

	text, err = renderOutput(nil)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}
