package llm

import (
	"context"
	"fmt"
	"irouter/internal/logger"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

// OpenAICompatClient serves OpenAI and every vendor exposing an OpenAI-compatible chat API
type OpenAICompatClient struct {
	client   openai.Client
	settings ClientSettings
}

// NewOpenAICompatClient creates a client; BaseURL empty means the OpenAI default endpoint
func NewOpenAICompatClient(settings ClientSettings, apiKey string, opts ...option.RequestOption) *OpenAICompatClient {
	requestOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if settings.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(settings.BaseURL))
	}
	requestOpts = append(requestOpts, opts...)

	return &OpenAICompatClient{
		client:   openai.NewClient(requestOpts...),
		settings: settings,
	}
}

// Settings returns the bound settings
func (c *OpenAICompatClient) Settings() ClientSettings {
	return c.settings
}

func (c *OpenAICompatClient) params(messages []Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.settings.Model),
		Messages: toOpenAIMessages(messages),
	}
	if c.settings.MaxTokens > 0 {
		params.MaxTokens = openai.Int(c.settings.MaxTokens)
	}
	if c.settings.Temperature != nil {
		params.Temperature = openai.Float(*c.settings.Temperature)
	}
	return params
}

// Generate returns the full completion
func (c *OpenAICompatClient) Generate(ctx context.Context, messages []Message) (string, error) {
	logger.Log.WithFields(logrus.Fields{
		"provider":      c.settings.Provider,
		"model":         c.settings.Model,
		"message_count": len(messages),
	}).Info("Calling chat completion")

	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages))
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", c.settings.Provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s completion returned no choices", c.settings.Provider)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream yields completion fragments as they arrive
func (c *OpenAICompatClient) Stream(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	logger.Log.WithFields(logrus.Fields{
		"provider":      c.settings.Provider,
		"model":         c.settings.Model,
		"message_count": len(messages),
	}).Info("Calling chat completion (streaming)")

	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(messages))
	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			if len(event.Choices) == 0 || event.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case chunks <- StreamChunk{Content: event.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case chunks <- StreamChunk{Err: fmt.Errorf("%s streaming error: %w", c.settings.Provider, err)}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(ExtractText(m)))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(ExtractText(m)))
		default:
			if !m.IsMultipart() {
				out = append(out, openai.UserMessage(m.Text))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Parts))
			for _, p := range m.Parts {
				switch p.Type {
				case PartText:
					parts = append(parts, openai.TextContentPart(p.Text))
				case PartImageURL:
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL:    p.URL,
						Detail: p.Detail,
					}))
				case PartImage:
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: DataURL(p.MediaType, p.Data),
					}))
				}
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}
