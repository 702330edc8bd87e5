package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ArkProvider serves Volcengine ARK endpoints through the eino ark
// component. ARK addresses models by endpoint id rather than by a public
// model name, so the configured model doubles as the endpoint.
type ArkProvider struct {
	chatModel model.ToolCallingChatModel
	models    []Model
	config    *ArkConfig
}

// ArkConfig holds configuration for the ARK provider.
type ArkConfig struct {
	APIKey  string
	BaseURL string
	// Model is the endpoint id on the ARK platform.
	Model     string
	MaxTokens int
}

// NewArkProvider creates an ARK provider.
func NewArkProvider(ctx context.Context, config *ArkConfig) (*ArkProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ARK_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ARK_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = os.Getenv("ARK_MODEL_ID")
	}
	if modelID == "" {
		return nil, fmt.Errorf("ARK_MODEL_ID not set")
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	cfg := &ark.ChatModelConfig{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: &maxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create ark model: %w", err)
	}

	return &ArkProvider{
		chatModel: chatModel,
		models:    arkModels(modelID),
		config:    config,
	}, nil
}

// ID returns the provider identifier.
func (p *ArkProvider) ID() string { return "ark" }

// Name returns the human-readable provider name.
func (p *ArkProvider) Name() string { return "ARK" }

// Models returns the list of available models.
func (p *ArkProvider) Models() []Model {
	return p.models
}

// ChatModel returns the underlying eino chat model.
func (p *ArkProvider) ChatModel() model.ToolCallingChatModel {
	return p.chatModel
}

// CreateCompletion starts a streaming completion.
func (p *ArkProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	chatModel, modelID, opts, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	stream, err := chatModel.Stream(ctx, req.Messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}

	return NewCompletionStream(modelID, stream), nil
}

// Generate runs a non-streaming completion.
func (p *ArkProvider) Generate(ctx context.Context, req *CompletionRequest) (*schema.Message, error) {
	chatModel, _, opts, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	msg, err := chatModel.Generate(ctx, req.Messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return msg, nil
}

func (p *ArkProvider) prepare(req *CompletionRequest) (model.ToolCallingChatModel, string, []model.Option, error) {
	chatModel := p.chatModel
	if len(req.Tools) > 0 {
		var err error
		chatModel, err = chatModel.WithTools(req.Tools)
		if err != nil {
			return nil, "", nil, fmt.Errorf("bind tools: %w", err)
		}
	}

	// ARK routes by the endpoint id the model was created with, so the
	// requested model is reported but never overrides the endpoint.
	modelID := req.Model
	if modelID == "" {
		modelID = p.config.Model
	}

	opts := []model.Option{}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(req.Temperature)))
	}

	return chatModel, modelID, opts, nil
}

func arkModels(endpointID string) []Model {
	return []Model{
		{
			ID:              endpointID,
			Name:            "ARK " + endpointID,
			ProviderID:      "ark",
			ContextLength:   128000,
			MaxOutputTokens: 4096,
			SupportsTools:   true,
		},
	}
}
