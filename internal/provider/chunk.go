package provider

import (
	"github.com/cloudwego/eino/schema"

	"github.com/conduit-ai/conduit/internal/message"
)

// Chunk is one typed unit decoded from a raw provider stream message. The
// session layer routes on the concrete type and never touches
// schema.Message directly.
type Chunk interface {
	isChunk()
}

// TextChunk carries a content delta.
type TextChunk struct {
	Text string
}

// ReasoningChunk carries a native reasoning delta from providers that
// stream thinking separately from content.
type ReasoningChunk struct {
	Text string
}

// ToolCallChunk carries streamed tool-call fragments; fragments sharing an
// index belong to the same call and are merged by the accumulator.
type ToolCallChunk struct {
	Calls []message.ToolCall
}

// UsageChunk carries token accounting, typically on the final message.
type UsageChunk struct {
	Usage message.Usage
}

// FinishChunk reports the provider's finish reason.
type FinishChunk struct {
	Reason string
}

func (TextChunk) isChunk()      {}
func (ReasoningChunk) isChunk() {}
func (ToolCallChunk) isChunk()  {}
func (UsageChunk) isChunk()     {}
func (FinishChunk) isChunk()    {}

// DecodeChunks converts one raw stream message into typed chunks. A single
// message can yield several: providers batch content, tool-call fragments
// and usage into the same frame.
func DecodeChunks(msg *schema.Message) []Chunk {
	if msg == nil {
		return nil
	}

	var chunks []Chunk

	if msg.ReasoningContent != "" {
		chunks = append(chunks, ReasoningChunk{Text: msg.ReasoningContent})
	}
	if msg.Content != "" {
		chunks = append(chunks, TextChunk{Text: msg.Content})
	}
	if len(msg.ToolCalls) > 0 {
		calls := make([]message.ToolCall, 0, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			index := i
			if tc.Index != nil {
				index = *tc.Index
			}
			calls = append(calls, message.ToolCall{
				Index:        index,
				ID:           tc.ID,
				FunctionName: tc.Function.Name,
				Arguments:    tc.Function.Arguments,
			})
		}
		chunks = append(chunks, ToolCallChunk{Calls: calls})
	}
	if msg.ResponseMeta != nil {
		if u := msg.ResponseMeta.Usage; u != nil {
			chunks = append(chunks, UsageChunk{Usage: message.Usage{
				PromptTokens:     u.PromptTokens,
				CompletionTokens: u.CompletionTokens,
				TotalTokens:      u.TotalTokens,
			}})
		}
		if msg.ResponseMeta.FinishReason != "" {
			chunks = append(chunks, FinishChunk{Reason: msg.ResponseMeta.FinishReason})
		}
	}

	return chunks
}
