// Package testutil provides helpers for conduit's integration suites: a
// scripted LLM provider and a fully wired test server.
package testutil

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/conduit-ai/conduit/internal/provider"
)

// MockProvider replays scripted message streams instead of calling a real
// LLM. Each call to CreateCompletion consumes the next script; the last
// script repeats once the list is exhausted.
type MockProvider struct {
	mu      sync.Mutex
	scripts [][]*schema.Message
	calls   int

	// Generated is returned by Generate.
	Generated string
}

// NewMockProvider creates a provider replaying the given scripts.
func NewMockProvider(scripts ...[]*schema.Message) *MockProvider {
	return &MockProvider{scripts: scripts, Generated: "generated"}
}

// TextScript builds a script streaming the given text chunks followed by
// a stop chunk.
func TextScript(chunks ...string) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(chunks)+1)
	for _, c := range chunks {
		msgs = append(msgs, &schema.Message{Role: schema.Assistant, Content: c})
	}
	msgs = append(msgs, &schema.Message{
		Role: schema.Assistant,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10},
		},
	})
	return msgs
}

func (p *MockProvider) ID() string   { return "mock" }
func (p *MockProvider) Name() string { return "Mock" }

func (p *MockProvider) Models() []provider.Model {
	return []provider.Model{{ID: "mock-model", Name: "Mock Model", ProviderID: "mock"}}
}

func (p *MockProvider) ChatModel() model.ToolCallingChatModel { return nil }

// Calls reports how many completions were started.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *MockProvider) CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionStream, error) {
	p.mu.Lock()
	idx := p.calls
	if idx >= len(p.scripts) {
		idx = len(p.scripts) - 1
	}
	p.calls++
	var script []*schema.Message
	if idx >= 0 {
		script = p.scripts[idx]
	} else {
		script = TextScript()
	}
	p.mu.Unlock()

	return provider.NewCompletionStream("mock/mock-model", schema.StreamReaderFromArray(script)), nil
}

func (p *MockProvider) Generate(ctx context.Context, req *provider.CompletionRequest) (*schema.Message, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return &schema.Message{Role: schema.Assistant, Content: p.Generated}, nil
}
