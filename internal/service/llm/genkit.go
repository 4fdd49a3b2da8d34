package llm

import (
	"context"
	"fmt"
	"irouter/internal/logger"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/openai/openai-go"
	"github.com/sirupsen/logrus"
)

// GenkitPlugin names an OpenAI-compatible vendor to register with Genkit
type GenkitPlugin struct {
	Provider string
	APIKey   string
	BaseURL  string
}

// GenkitBackend owns one Genkit instance with a compat_oai plugin per vendor
type GenkitBackend struct {
	genkit    *genkit.Genkit
	providers map[string]bool
}

// NewGenkitBackend initializes Genkit with every plugin that has a credential.
// It returns nil when no plugin is usable.
func NewGenkitBackend(ctx context.Context, plugins []GenkitPlugin) *GenkitBackend {
	var opts []genkit.GenkitOption
	providers := make(map[string]bool)

	for _, p := range plugins {
		if p.APIKey == "" {
			continue
		}
		opts = append(opts, genkit.WithPlugins(&compat_oai.OpenAICompatible{
			Provider: p.Provider,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
		}))
		providers[p.Provider] = true
	}

	if len(providers) == 0 {
		return nil
	}

	g := genkit.Init(ctx, opts...)
	logger.Log.WithField("providers", len(providers)).Info("Initialized Genkit")

	return &GenkitBackend{genkit: g, providers: providers}
}

// Serves reports whether a plugin was registered for provider
func (b *GenkitBackend) Serves(provider string) bool {
	return b != nil && b.providers[provider]
}

// GenkitClient serves a vendor through its Genkit compat_oai plugin
type GenkitClient struct {
	backend  *GenkitBackend
	settings ClientSettings
}

// NewGenkitClient binds settings to a backend
func NewGenkitClient(backend *GenkitBackend, settings ClientSettings) *GenkitClient {
	return &GenkitClient{backend: backend, settings: settings}
}

// Settings returns the bound settings
func (c *GenkitClient) Settings() ClientSettings {
	return c.settings
}

func (c *GenkitClient) modelName() string {
	prefix := c.settings.Provider + "/"
	if strings.HasPrefix(c.settings.Model, prefix) {
		return c.settings.Model
	}
	return prefix + c.settings.Model
}

func (c *GenkitClient) options(messages []Message) []ai.GenerateOption {
	config := &openai.ChatCompletionNewParams{}
	if c.settings.Temperature != nil {
		config.Temperature = openai.Float(*c.settings.Temperature)
	}
	if c.settings.MaxTokens > 0 {
		config.MaxTokens = openai.Int(c.settings.MaxTokens)
	}

	return []ai.GenerateOption{
		ai.WithMessages(toGenkitMessages(messages)...),
		ai.WithModelName(c.modelName()),
		ai.WithConfig(config),
	}
}

// Generate returns the full completion
func (c *GenkitClient) Generate(ctx context.Context, messages []Message) (string, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         c.modelName(),
		"message_count": len(messages),
	}).Info("Calling Genkit")

	resp, err := genkit.Generate(ctx, c.backend.genkit, c.options(messages)...)
	if err != nil {
		return "", fmt.Errorf("genkit generation failed: %w", err)
	}
	return resp.Text(), nil
}

// Stream yields completion fragments through the Genkit streaming callback
func (c *GenkitClient) Stream(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         c.modelName(),
		"message_count": len(messages),
	}).Info("Calling Genkit (streaming)")

	chunks := make(chan StreamChunk)
	opts := append(c.options(messages), ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
		for _, part := range chunk.Content {
			if !part.IsText() || part.Text == "" {
				continue
			}
			select {
			case chunks <- StreamChunk{Content: part.Text}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}))

	go func() {
		defer close(chunks)

		if _, err := genkit.Generate(ctx, c.backend.genkit, opts...); err != nil {
			select {
			case chunks <- StreamChunk{Err: fmt.Errorf("genkit streaming failed: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

func toGenkitMessages(messages []Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(messages))
	for _, m := range messages {
		role := ai.RoleUser
		switch m.Role {
		case RoleSystem:
			role = ai.RoleSystem
		case RoleAssistant:
			role = ai.RoleModel
		}

		var parts []*ai.Part
		if !m.IsMultipart() {
			parts = append(parts, ai.NewTextPart(m.Text))
		} else {
			for _, p := range m.Parts {
				switch p.Type {
				case PartText:
					parts = append(parts, ai.NewTextPart(p.Text))
				case PartImageURL:
					parts = append(parts, ai.NewMediaPart("", p.URL))
				case PartImage:
					parts = append(parts, ai.NewMediaPart(p.MediaType, DataURL(p.MediaType, p.Data)))
				}
			}
		}

		out = append(out, &ai.Message{Role: role, Content: parts})
	}
	return out
}
