package llm

import (
	"irouter/internal/config"
	"irouter/internal/logger"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultProvider serves unknown providers
	DefaultProvider = "openai"
	// MaxTokens caps every completion
	MaxTokens = 2000
	// Temperature is used wherever the vendor accepts one
	Temperature = 0.7
)

// Factory builds a client for already resolved settings
type Factory func(settings ClientSettings, apiKey string) ChatClient

// Registry maps lower-case provider names to client factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	endpoints *config.ProvidersConfig
	apiKey    func(provider string) string
}

var _ Selector = (*Registry)(nil)

// NewRegistry creates a registry preloaded with the built-in vendors
func NewRegistry(llmConfig *config.LLMConfig, genkitBackend *GenkitBackend) *Registry {
	endpoints := llmConfig.Providers
	if endpoints == nil {
		endpoints = config.DefaultProvidersConfig(llmConfig.OllamaBaseURL)
	}

	r := &Registry{
		factories: make(map[string]Factory),
		endpoints: endpoints,
		apiKey:    llmConfig.APIKey,
	}

	openAICompat := func(settings ClientSettings, apiKey string) ChatClient {
		return NewOpenAICompatClient(settings, apiKey)
	}
	for _, name := range []string{"openai", "openrouter", "deepseek", "google", "ollama", "cerebras", "edith"} {
		r.Register(name, openAICompat)
	}

	r.Register("anthropic", func(settings ClientSettings, apiKey string) ChatClient {
		return NewAnthropicClient(settings, apiKey)
	})

	viaGenkit := func(settings ClientSettings, apiKey string) ChatClient {
		if genkitBackend.Serves(settings.Provider) {
			return NewGenkitClient(genkitBackend, settings)
		}
		return NewOpenAICompatClient(settings, apiKey)
	}
	r.Register("xai", viaGenkit)
	r.Register("mistralai", viaGenkit)

	return r
}

// Register adds or replaces the factory for a provider
func (r *Registry) Register(provider string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(provider)] = factory
}

// Settings resolves the settings a client for provider/model would be bound to
func (r *Registry) Settings(provider, model string, streaming bool) ClientSettings {
	name := strings.ToLower(strings.TrimSpace(provider))
	ep, _ := r.endpoints.Endpoint(name)

	settings := ClientSettings{
		Provider:       name,
		Model:          model,
		TokenizerModel: model,
		BaseURL:        ep.BaseURL,
		MaxTokens:      MaxTokens,
		Streaming:      streaming,
	}
	if ep.PinnedModel != "" {
		settings.Model = ep.PinnedModel
	}
	if ep.TokenizerModel != "" {
		settings.TokenizerModel = ep.TokenizerModel
	}
	// openai and openrouter are called without a temperature
	if name != "openai" && name != "openrouter" {
		t := Temperature
		settings.Temperature = &t
	}
	return settings
}

// Select returns a client for provider/model. It never fails and makes no network call:
// unknown providers with a configured endpoint get an OpenAI-compatible client,
// anything else falls back to OpenAI.
func (r *Registry) Select(provider, model string, streaming bool) ChatClient {
	name := strings.ToLower(strings.TrimSpace(provider))

	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		if ep, known := r.endpoints.Endpoint(name); known && ep.BaseURL != "" {
			logger.Log.WithField("provider", name).Info("Using OpenAI-compatible client for configured provider")
			return NewOpenAICompatClient(r.Settings(name, model, streaming), r.apiKey(name))
		}

		logger.Log.WithFields(logrus.Fields{
			"provider": provider,
			"fallback": DefaultProvider,
		}).Warn("Unknown provider, falling back")

		name = DefaultProvider
		r.mu.RLock()
		factory = r.factories[name]
		r.mu.RUnlock()
	}

	return factory(r.Settings(name, model, streaming), r.apiKey(name))
}
