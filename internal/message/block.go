// Package message defines the typed content blocks an assistant message is
// built from, plus the machinery that turns a raw completion stream into
// blocks: the tag classifier, the tool-call accumulator, and the serializer.
package message

import "encoding/json"

// Block represents a typed, ordered segment of an assistant message's
// evolving content. Within a session the block list is append-only except
// for the trailing block, which is mutated in place while open.
type Block interface {
	BlockType() string
}

// Block type discriminators used in persisted JSON.
const (
	BlockText            = "text"
	BlockReasoning       = "reasoning"
	BlockToolCalls       = "tool_calls"
	BlockCodeInterpreter = "code_interpreter"
	BlockSolution        = "solution"
)

// TextBlock holds plain assistant text. It is always implicitly open and
// may be empty.
type TextBlock struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func NewTextBlock(content string) *TextBlock {
	return &TextBlock{Type: BlockText, Content: content}
}

func (b *TextBlock) BlockType() string { return BlockText }

// ReasoningBlock holds model reasoning, either extracted from tagged text
// (<think>...</think> and friends) or routed from a provider's native
// reasoning channel.
type ReasoningBlock struct {
	Type       string            `json:"type"`
	Content    string            `json:"content"`
	StartTag   string            `json:"start_tag,omitempty"`
	EndTag     string            `json:"end_tag,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	StartedAt  int64             `json:"started_at"`
	EndedAt    *int64            `json:"ended_at,omitempty"`
	// Duration is in whole seconds, computed when the block closes.
	Duration *int64 `json:"duration,omitempty"`
}

func (b *ReasoningBlock) BlockType() string { return BlockReasoning }

// Closed reports whether the block's end tag has been seen.
func (b *ReasoningBlock) Closed() bool { return b.EndedAt != nil }

// ToolCall is one invocable call accumulated from streamed fragments.
// Identity is the provider-assigned Index during accumulation; finalized
// calls are keyed by ID.
type ToolCall struct {
	Index        int    `json:"index"`
	ID           string `json:"id"`
	FunctionName string `json:"function_name"`
	// Arguments is the accumulated raw string; it is not necessarily valid
	// JSON until the call is complete.
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of executing a ToolCall, matched back to its
// call by ToolCallID.
type ToolResult struct {
	ToolCallID string   `json:"tool_call_id"`
	Content    string   `json:"content"`
	Files      []string `json:"files,omitempty"`
}

// ToolCallsBlock groups one streamed batch of tool calls with the results
// collected for them.
type ToolCallsBlock struct {
	Type    string       `json:"type"`
	Calls   []ToolCall   `json:"calls"`
	Results []ToolResult `json:"results,omitempty"`
}

func NewToolCallsBlock(calls []ToolCall) *ToolCallsBlock {
	return &ToolCallsBlock{Type: BlockToolCalls, Calls: calls}
}

func (b *ToolCallsBlock) BlockType() string { return BlockToolCalls }

// CodeInterpreterBlock holds a code snippet the model asked to run, plus
// the execution output once available.
type CodeInterpreterBlock struct {
	Type       string            `json:"type"`
	Content    string            `json:"content"`
	Attributes map[string]string `json:"attributes,omitempty"`
	StartTag   string            `json:"start_tag,omitempty"`
	EndTag     string            `json:"end_tag,omitempty"`
	StartedAt  int64             `json:"started_at"`
	EndedAt    *int64            `json:"ended_at,omitempty"`
	Output     *string           `json:"output,omitempty"`
}

func (b *CodeInterpreterBlock) BlockType() string { return BlockCodeInterpreter }

// Closed reports whether the block's end tag has been seen.
func (b *CodeInterpreterBlock) Closed() bool { return b.EndedAt != nil }

// Lang returns the language attribute from the opening tag, if present.
func (b *CodeInterpreterBlock) Lang() string { return b.Attributes["lang"] }

// SolutionBlock holds a tagged final-answer section.
type SolutionBlock struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	StartTag  string `json:"start_tag,omitempty"`
	EndTag    string `json:"end_tag,omitempty"`
	StartedAt int64  `json:"started_at"`
	EndedAt   *int64 `json:"ended_at,omitempty"`
}

func (b *SolutionBlock) BlockType() string { return BlockSolution }

// Usage holds token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UnmarshalBlock decodes a persisted block into its concrete type using the
// "type" discriminator. Unknown types decode as text so old data stays
// readable.
func UnmarshalBlock(data []byte) (Block, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case BlockReasoning:
		var b ReasoningBlock
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return &b, nil
	case BlockToolCalls:
		var b ToolCallsBlock
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return &b, nil
	case BlockCodeInterpreter:
		var b CodeInterpreterBlock
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return &b, nil
	case BlockSolution:
		var b SolutionBlock
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return &b, nil
	default:
		var b TextBlock
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		b.Type = BlockText
		return &b, nil
	}
}

// MarshalBlocks encodes a block list for persistence. Each concrete block
// carries its "type" discriminator, so plain JSON encoding round-trips
// through UnmarshalBlocks.
func MarshalBlocks(blocks []Block) ([]byte, error) {
	return json.Marshal(blocks)
}

// UnmarshalBlocks decodes a persisted block list.
func UnmarshalBlocks(data []byte) ([]Block, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}

	blocks := make([]Block, 0, len(raws))
	for _, raw := range raws {
		b, err := UnmarshalBlock(raw)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}
