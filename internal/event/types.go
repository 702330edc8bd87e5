package event

import "github.com/conduit-ai/conduit/internal/message"

// MessageData carries a full checkpoint of a message's serialized content.
type MessageData struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// DeltaData carries one incremental content delta.
type DeltaData struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Delta     string `json:"delta"`
}

// CompletionData is the terminal event for a message.
type CompletionData struct {
	ChatID       string         `json:"chat_id"`
	MessageID    string         `json:"message_id"`
	Content      string         `json:"content"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        *message.Usage `json:"usage,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// CancelledData reports a session stopped by the client.
type CancelledData struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// ModelSelectedData reports the provider's routed model choice.
type ModelSelectedData struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	ModelID   string `json:"model_id"`
}

// TitleData carries a generated chat title.
type TitleData struct {
	ChatID string `json:"chat_id"`
	Title  string `json:"title"`
}

// TagsData carries generated chat tags.
type TagsData struct {
	ChatID string   `json:"chat_id"`
	Tags   []string `json:"tags"`
}

// ToolExecuteData asks the connected client to run a direct tool and post
// the result back.
type ToolExecuteData struct {
	RequestID string         `json:"request_id"`
	ChatID    string         `json:"chat_id"`
	MessageID string         `json:"message_id"`
	CallID    string         `json:"call_id"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// ToolStatusData reports tool execution progress for display.
type ToolStatusData struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	CallID    string `json:"call_id"`
	Tool      string `json:"tool"`
	Status    string `json:"status"`
}
