// Package provider abstracts LLM access behind the eino chat-model
// interface. Providers stream schema.Message chunks; DecodeChunks turns
// each raw chunk into typed events at this boundary so the session layer
// never inspects provider payloads.
package provider

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Model describes one model a provider can serve.
type Model struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ProviderID        string `json:"provider_id"`
	ContextLength     int    `json:"context_length"`
	MaxOutputTokens   int    `json:"max_output_tokens"`
	SupportsTools     bool   `json:"supports_tools"`
	SupportsVision    bool   `json:"supports_vision"`
	SupportsReasoning bool   `json:"supports_reasoning"`
}

// Provider is one configured LLM backend.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the list of available models.
	Models() []Model

	// ChatModel returns the underlying eino chat model.
	ChatModel() model.ToolCallingChatModel

	// CreateCompletion starts a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)

	// Generate runs a non-streaming completion and returns the full message.
	Generate(ctx context.Context, req *CompletionRequest) (*schema.Message, error)
}

// CompletionRequest describes one completion invocation.
type CompletionRequest struct {
	Model       string             `json:"model"`
	Messages    []*schema.Message  `json:"messages"`
	Tools       []*schema.ToolInfo `json:"tools,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

// CompletionStream wraps an eino stream reader together with the model id
// the provider routed the request to.
type CompletionStream struct {
	ModelID string

	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream creates a completion stream.
func NewCompletionStream(modelID string, reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{ModelID: modelID, reader: reader}
}

// Recv returns the next raw chunk. io.EOF marks the end of the stream.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close releases the stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// ToolInfo is a provider-neutral tool definition carrying a raw JSON
// Schema for its parameters.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ConvertTools converts tool definitions to the eino format.
func ConvertTools(tools []ToolInfo) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		var params map[string]*schema.ParameterInfo
		if len(t.Parameters) > 0 {
			params = parseJSONSchemaParams(t.Parameters)
		}
		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return result
}

func parseJSONSchemaParams(raw json.RawMessage) map[string]*schema.ParameterInfo {
	var js struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil
	}

	required := make(map[string]bool)
	for _, r := range js.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range js.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: required[name],
		}
	}
	return params
}
