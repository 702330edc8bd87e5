package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-ai/conduit/internal/event"
	"github.com/conduit-ai/conduit/internal/message"
	"github.com/conduit-ai/conduit/internal/tool"
)

type echoTool struct {
	err error
}

func (echoTool) ID() string          { return "echo" }
func (echoTool) Description() string { return "echoes text back" }

func (echoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"text": {"type": "string"}},
		"required": ["text"]
	}`)
}

func (e echoTool) Execute(ctx context.Context, args map[string]any, toolCtx *tool.Context) (any, error) {
	if e.err != nil {
		return nil, e.err
	}
	text, _ := args["text"].(string)
	return text, nil
}

type listTool struct {
	items []any
}

func (listTool) ID() string                  { return "list" }
func (listTool) Description() string         { return "returns a list" }
func (listTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (l listTool) Execute(ctx context.Context, args map[string]any, toolCtx *tool.Context) (any, error) {
	return l.items, nil
}

func newToolTestSession(t *testing.T, prov *scriptedProvider, tools ...tool.Tool) (*Session, *recorder) {
	t.Helper()

	opts, _, _, rec := newTestOptions(t, prov)
	registry := tool.NewRegistry()
	for _, tl := range tools {
		registry.Register(tl)
	}
	opts.Tools = registry

	return New(opts), rec
}

func TestToolLoopExecutesAndContinues(t *testing.T) {
	prov := &scriptedProvider{scripts: [][]*schema.Message{
		{
			textMsg("Let me check."),
			toolCallMsg(0, "call_1", "echo", `{"text":"hi"}`),
			finishMsg("tool_calls", 5, 5),
		},
		{
			textMsg("It said hi."),
			finishMsg("stop", 5, 5),
		},
	}}

	sess, _ := newToolTestSession(t, prov, echoTool{})
	require.NoError(t, sess.Run(context.Background()))

	assert.Equal(t, 2, prov.invocations())

	var toolBlocks []*message.ToolCallsBlock
	for _, b := range sess.Blocks() {
		if tb, ok := b.(*message.ToolCallsBlock); ok {
			toolBlocks = append(toolBlocks, tb)
		}
	}
	require.Len(t, toolBlocks, 1)
	require.Len(t, toolBlocks[0].Results, 1)
	assert.Equal(t, "call_1", toolBlocks[0].Results[0].ToolCallID)
	assert.Equal(t, "hi", toolBlocks[0].Results[0].Content)

	// Reinvocation carries the assistant's tool-calling turn plus one tool
	// message per result.
	require.Len(t, prov.requests, 2)
	reinvoke := prov.requests[1].Messages
	require.GreaterOrEqual(t, len(reinvoke), 3)

	assistant := reinvoke[len(reinvoke)-2]
	assert.Equal(t, schema.Assistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "echo", assistant.ToolCalls[0].Function.Name)

	toolMsg := reinvoke[len(reinvoke)-1]
	assert.Equal(t, schema.Tool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, "hi", toolMsg.Content)
}

func TestToolLoopStopsAtBound(t *testing.T) {
	// Every invocation asks for another tool call; the loop must stop after
	// MaxToolCallRetries rounds and finish with the results it has.
	prov := &scriptedProvider{scripts: [][]*schema.Message{{
		toolCallMsg(0, "call_x", "echo", `{"text":"again"}`),
		finishMsg("tool_calls", 1, 1),
	}}}

	sess, rec := newToolTestSession(t, prov, echoTool{})
	require.NoError(t, sess.Run(context.Background()))

	assert.Equal(t, MaxToolCallRetries+1, prov.invocations())

	count := 0
	for _, b := range sess.Blocks() {
		if _, ok := b.(*message.ToolCallsBlock); ok {
			count++
		}
	}
	assert.Equal(t, MaxToolCallRetries, count)

	require.Len(t, rec.byType(event.ChatCompletion), 1)
}

func TestToolLoopUnknownToolIsData(t *testing.T) {
	prov := &scriptedProvider{scripts: [][]*schema.Message{
		{
			toolCallMsg(0, "call_1", "nope", `{}`),
			finishMsg("tool_calls", 1, 1),
		},
		{
			textMsg("fallback"),
			finishMsg("stop", 1, 1),
		},
	}}

	sess, _ := newToolTestSession(t, prov, echoTool{})
	require.NoError(t, sess.Run(context.Background()))

	result := firstToolResult(t, sess)
	assert.Contains(t, result.Content, "not available")
}

func TestToolLoopMalformedArgumentsIsData(t *testing.T) {
	prov := &scriptedProvider{scripts: [][]*schema.Message{
		{
			toolCallMsg(0, "call_1", "echo", `{"text": `),
			finishMsg("tool_calls", 1, 1),
		},
		{
			textMsg("fallback"),
			finishMsg("stop", 1, 1),
		},
	}}

	sess, _ := newToolTestSession(t, prov, echoTool{})
	require.NoError(t, sess.Run(context.Background()))

	result := firstToolResult(t, sess)
	assert.Contains(t, result.Content, "malformed arguments")
}

func TestToolLoopExecutionErrorIsData(t *testing.T) {
	prov := &scriptedProvider{scripts: [][]*schema.Message{
		{
			toolCallMsg(0, "call_1", "echo", `{"text":"hi"}`),
			finishMsg("tool_calls", 1, 1),
		},
		{
			textMsg("fallback"),
			finishMsg("stop", 1, 1),
		},
	}}

	sess, _ := newToolTestSession(t, prov, echoTool{err: errors.New("backend down")})
	require.NoError(t, sess.Run(context.Background()))

	result := firstToolResult(t, sess)
	assert.Contains(t, result.Content, "backend down")
}

func TestToolLoopDirectToolWithoutExecutorIsData(t *testing.T) {
	prov := &scriptedProvider{scripts: [][]*schema.Message{
		{
			toolCallMsg(0, "call_1", "browser_search", `{"query":"go"}`),
			finishMsg("tool_calls", 1, 1),
		},
		{
			textMsg("fallback"),
			finishMsg("stop", 1, 1),
		},
	}}

	opts, _, _, _ := newTestOptions(t, prov)
	registry := tool.NewRegistry()
	registry.RegisterDirect([]tool.DirectSpec{{
		Name:       "browser_search",
		Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}}}`),
	}})
	opts.Tools = registry

	sess := New(opts)
	require.NoError(t, sess.Run(context.Background()))

	result := firstToolResult(t, sess)
	assert.Contains(t, result.Content, "not available")
}

func TestToolLoopExtractsDataURIFiles(t *testing.T) {
	prov := &scriptedProvider{scripts: [][]*schema.Message{
		{
			toolCallMsg(0, "call_1", "list", `{}`),
			finishMsg("tool_calls", 1, 1),
		},
		{
			textMsg("done"),
			finishMsg("stop", 1, 1),
		},
	}}

	sess, _ := newToolTestSession(t, prov, listTool{items: []any{
		"data:image/png;base64,AAAA",
		map[string]any{"rows": float64(3)},
	}})
	require.NoError(t, sess.Run(context.Background()))

	result := firstToolResult(t, sess)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "data:image/png;base64,AAAA", result.Files[0])
	assert.Contains(t, result.Content, `"rows"`)
}

func firstToolResult(t *testing.T, sess *Session) message.ToolResult {
	t.Helper()
	for _, b := range sess.Blocks() {
		if tb, ok := b.(*message.ToolCallsBlock); ok {
			require.NotEmpty(t, tb.Results)
			return tb.Results[0]
		}
	}
	t.Fatal("no tool calls block found")
	return message.ToolResult{}
}

func TestRenderToolOutput(t *testing.T) {
	content, files := renderToolOutput("plain")
	assert.Equal(t, "plain", content)
	assert.Empty(t, files)

	content, files = renderToolOutput([]any{"data:image/png;base64,xx", "data:image/png;base64,yy"})
	assert.Empty(t, content)
	assert.Len(t, files, 2)

	content, files = renderToolOutput(map[string]any{"a": 1})
	assert.Contains(t, content, `"a"`)
	assert.Empty(t, files)

	content, files = renderToolOutput(nil)
	assert.Empty(t, content)
	assert.Empty(t, files)
}
