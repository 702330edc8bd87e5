package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/conduit-ai/conduit/internal/event"
	"github.com/conduit-ai/conduit/internal/message"
	"github.com/conduit-ai/conduit/internal/provider"
	"github.com/conduit-ai/conduit/internal/tool"
)

// executeToolCalls runs one drained batch of tool calls. Every failure mode
// (bad arguments, unknown tool, execution error, direct-tool timeout) is
// folded into the result content so the model can react to it; nothing here
// aborts the session.
func (s *Session) executeToolCalls(ctx context.Context, calls []message.ToolCall) []message.ToolResult {
	block := message.NewToolCallsBlock(calls)
	s.blocks = append(s.blocks, block)
	s.emitMessage()
	if s.opts.Policy == PolicyRealtime {
		s.checkpoint(false)
	}

	results := make([]message.ToolResult, 0, len(calls))
	for _, call := range calls {
		if ctx.Err() != nil {
			break
		}

		result := s.executeToolCall(ctx, call)
		results = append(results, result)

		block.Results = append([]message.ToolResult(nil), results...)
		s.emitMessage()
		if s.opts.Policy == PolicyRealtime {
			s.checkpoint(false)
		}
	}

	return results
}

func (s *Session) executeToolCall(ctx context.Context, call message.ToolCall) message.ToolResult {
	result := message.ToolResult{ToolCallID: call.ID}

	args, ok := message.ParseArguments(call.Arguments)
	if !ok {
		result.Content = fmt.Sprintf("Error: tool %q received malformed arguments", call.FunctionName)
		return result
	}

	if s.opts.Tools == nil {
		result.Content = fmt.Sprintf("Error: tool %q is not available", call.FunctionName)
		return result
	}

	binding, found := s.opts.Tools.Lookup(call.FunctionName)
	if !found {
		result.Content = fmt.Sprintf("Error: tool %q is not available", call.FunctionName)
		return result
	}

	args = tool.FilterArguments(binding.Parameters(), args)

	toolCtx := &tool.Context{
		ChatID:    s.opts.ChatID,
		MessageID: s.opts.MessageID,
		CallID:    call.ID,
		OnStatus: func(status string) {
			s.publish(event.Event{
				Type: event.ToolStatus,
				Data: event.ToolStatusData{
					ChatID:    s.opts.ChatID,
					MessageID: s.opts.MessageID,
					CallID:    call.ID,
					Tool:      call.FunctionName,
					Status:    status,
				},
			})
		},
	}

	if binding.IsDirect() {
		if s.opts.Direct == nil {
			result.Content = fmt.Sprintf("Error: tool %q is not available", call.FunctionName)
			return result
		}
		resp, err := s.opts.Direct.Execute(ctx, toolCtx, call.FunctionName, args)
		if err != nil {
			result.Content = fmt.Sprintf("Error: %s", err)
			return result
		}
		if resp.Error != "" {
			result.Content = fmt.Sprintf("Error: %s", resp.Error)
			return result
		}
		result.Content = resp.Content
		return result
	}

	output, err := binding.Local.Execute(ctx, args, toolCtx)
	if err != nil {
		result.Content = fmt.Sprintf("Error: %s", err)
		return result
	}

	result.Content, result.Files = renderToolOutput(output)
	return result
}

// renderToolOutput flattens a tool's return value into result text. List
// results are scanned for data URIs, which move into the files slice so the
// client can render them; everything else is JSON.
func renderToolOutput(output any) (string, []string) {
	switch v := output.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []any:
		var files []string
		rest := make([]any, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok && strings.HasPrefix(str, "data:") {
				files = append(files, str)
				continue
			}
			rest = append(rest, item)
		}

		if len(rest) == 0 {
			return "", files
		}
		data, err := json.MarshalIndent(rest, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", rest), files
		}
		return string(data), files
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v), nil
		}
		return string(data), nil
	}
}

// reinvokeWithTools extends the working conversation with the assistant's
// tool-calling turn in the provider's native shape, followed by one tool
// message per result, then starts the next stream.
func (s *Session) reinvokeWithTools(ctx context.Context, calls []message.ToolCall, results []message.ToolResult) (*provider.CompletionStream, error) {
	content := message.SerializeForModel(s.textBlocksSince(s.mark))

	assistant := &schema.Message{
		Role:      schema.Assistant,
		Content:   content,
		ToolCalls: toSchemaToolCalls(calls),
	}
	s.history = append(s.history, assistant)

	for _, result := range results {
		content := result.Content
		if len(result.Files) > 0 {
			content += "\n" + strings.Join(result.Files, "\n")
		}
		s.history = append(s.history, schema.ToolMessage(content, result.ToolCallID))
	}

	s.mark = len(s.blocks)
	return s.invoke(ctx)
}

// reinvokeWithTranscript extends the conversation with the assistant's own
// serialized turn since the last mark, including executed code output, then
// starts the next stream. The transcript is an assistant message, not a
// tool message: the model continues its own prior output.
func (s *Session) reinvokeWithTranscript(ctx context.Context) (*provider.CompletionStream, error) {
	content := message.SerializeForModel(s.blocks[s.mark:])
	s.history = append(s.history, &schema.Message{
		Role:    schema.Assistant,
		Content: content,
	})

	s.mark = len(s.blocks)
	return s.invoke(ctx)
}

// textBlocksSince returns the blocks produced since mark, excluding the
// trailing tool-calls block that triggered the reinvocation.
func (s *Session) textBlocksSince(mark int) []message.Block {
	blocks := s.blocks[mark:]
	trimmed := make([]message.Block, 0, len(blocks))
	for _, b := range blocks {
		if _, isToolCalls := b.(*message.ToolCallsBlock); isToolCalls {
			continue
		}
		trimmed = append(trimmed, b)
	}
	return trimmed
}

func toSchemaToolCalls(calls []message.ToolCall) []schema.ToolCall {
	out := make([]schema.ToolCall, 0, len(calls))
	for _, call := range calls {
		idx := call.Index
		out = append(out, schema.ToolCall{
			Index: &idx,
			ID:    call.ID,
			Type:  "function",
			Function: schema.FunctionCall{
				Name:      call.FunctionName,
				Arguments: call.Arguments,
			},
		})
	}
	return out
}
