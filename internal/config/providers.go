package config

import (
	"errors"
	"fmt"
	"io/fs"
	"irouter/internal/logger"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderEndpoint describes how to reach one vendor
type ProviderEndpoint struct {
	BaseURL        string `yaml:"base_url"`
	PinnedModel    string `yaml:"pinned_model,omitempty"`
	TokenizerModel string `yaml:"tokenizer_model,omitempty"`
}

// ProvidersConfig holds the endpoint table keyed by lower-case provider name
type ProvidersConfig struct {
	endpoints map[string]ProviderEndpoint
}

type providersFile struct {
	Providers map[string]ProviderEndpoint `yaml:"providers"`
}

// DefaultProvidersConfig returns the built-in endpoint table
func DefaultProvidersConfig(ollamaBaseURL string) *ProvidersConfig {
	return &ProvidersConfig{endpoints: map[string]ProviderEndpoint{
		"openai":     {},
		"openrouter": {BaseURL: "https://openrouter.ai/api/v1"},
		"deepseek":   {BaseURL: "https://api.deepseek.com/v1"},
		"google":     {BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/"},
		"ollama":     {BaseURL: strings.TrimRight(ollamaBaseURL, "/") + "/v1"},
		"cerebras":   {BaseURL: "https://api.cerebras.ai/v1"},
		"edith":      {BaseURL: "https://api.cerebras.ai/v1", PinnedModel: "llama-3.3-70b", TokenizerModel: "llama3.1-8b"},
		"anthropic":  {},
		"xai":        {BaseURL: "https://api.x.ai/v1"},
		"mistralai":  {BaseURL: "https://api.mistral.ai/v1"},
	}}
}

// NewProvidersConfig loads endpoint overrides from a YAML file on top of the defaults.
// A missing file is not an error.
func NewProvidersConfig(path, ollamaBaseURL string) (*ProvidersConfig, error) {
	pc := DefaultProvidersConfig(ollamaBaseURL)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Log.WithField("path", path).Debug("Providers file not found, using built-in endpoints")
			return pc, nil
		}
		return nil, err
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid providers file %s: %w", path, err)
	}

	for name, override := range file.Providers {
		name = strings.ToLower(name)
		current := pc.endpoints[name]
		if override.BaseURL != "" {
			current.BaseURL = override.BaseURL
		}
		if override.PinnedModel != "" {
			current.PinnedModel = override.PinnedModel
		}
		if override.TokenizerModel != "" {
			current.TokenizerModel = override.TokenizerModel
		}
		pc.endpoints[name] = current
	}

	logger.Log.WithField("providers", len(file.Providers)).Info("Loaded provider endpoint overrides")
	return pc, nil
}

// Endpoint returns the endpoint for a provider name, case-insensitively
func (pc *ProvidersConfig) Endpoint(provider string) (ProviderEndpoint, bool) {
	ep, ok := pc.endpoints[strings.ToLower(provider)]
	return ep, ok
}

// Names returns the configured provider names in sorted order
func (pc *ProvidersConfig) Names() []string {
	names := make([]string, 0, len(pc.endpoints))
	for name := range pc.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
