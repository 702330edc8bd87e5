package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Settings configures one provider entry from the application config.
type Settings struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// Registry holds the configured providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultModel string
}

// NewRegistry creates an empty registry. defaultModel uses the
// "provider/model" form and may be empty.
func NewRegistry(defaultModel string) *Registry {
	return &Registry{
		providers:    make(map[string]Provider),
		defaultModel: defaultModel,
	}
}

// Register adds a provider.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by id.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all registered providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID() < providers[j].ID() })
	return providers
}

// GetModel retrieves one model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, m := range provider.Models() {
		if m.ID == modelID {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns every model from every provider.
func (r *Registry) AllModels() []Model {
	var models []Model
	for _, p := range r.List() {
		models = append(models, p.Models()...)
	}
	return models
}

// Resolve returns the provider and model id for a "provider/model" string,
// falling back to the configured default and then to the first registered
// provider's default model.
func (r *Registry) Resolve(modelString string) (Provider, string, error) {
	if modelString == "" {
		modelString = r.defaultModel
	}

	providerID, modelID := ParseModelString(modelString)
	if providerID != "" {
		p, err := r.Get(providerID)
		if err != nil {
			return nil, "", err
		}
		return p, modelID, nil
	}

	// Bare model id: find the provider that serves it.
	if modelID != "" {
		for _, p := range r.List() {
			for _, m := range p.Models() {
				if m.ID == modelID {
					return p, modelID, nil
				}
			}
		}
	}

	providers := r.List()
	if len(providers) == 0 {
		return nil, "", fmt.Errorf("no providers configured")
	}
	return providers[0], modelID, nil
}

// ParseModelString splits a "provider/model" string.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// Initialize creates and registers providers from per-provider settings.
// Providers whose credentials are missing are skipped, not fatal.
func Initialize(ctx context.Context, settings map[string]Settings, defaultModel string) (*Registry, error) {
	registry := NewRegistry(defaultModel)

	if cfg, ok := settings["anthropic"]; ok {
		provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err == nil {
			registry.Register(provider)
		}
	}

	if cfg, ok := settings["openai"]; ok {
		provider, err := NewOpenAIProvider(ctx, &OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err == nil {
			registry.Register(provider)
		}
	}

	if cfg, ok := settings["ark"]; ok {
		provider, err := NewArkProvider(ctx, &ArkConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err == nil {
			registry.Register(provider)
		}
	}

	return registry, nil
}
