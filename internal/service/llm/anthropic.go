package llm

import (
	"context"
	"fmt"
	"irouter/internal/logger"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
)

// AnthropicClient serves Claude models through the Messages API
type AnthropicClient struct {
	client   anthropic.Client
	settings ClientSettings
}

// NewAnthropicClient creates an Anthropic client
func NewAnthropicClient(settings ClientSettings, apiKey string, opts ...option.RequestOption) *AnthropicClient {
	requestOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if settings.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(settings.BaseURL))
	}
	requestOpts = append(requestOpts, opts...)

	return &AnthropicClient{
		client:   anthropic.NewClient(requestOpts...),
		settings: settings,
	}
}

// Settings returns the bound settings
func (c *AnthropicClient) Settings() ClientSettings {
	return c.settings
}

func (c *AnthropicClient) params(messages []Message) anthropic.MessageNewParams {
	system, converted := toAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.settings.Model),
		Messages:  converted,
		MaxTokens: c.settings.MaxTokens,
	}
	if c.settings.Temperature != nil {
		params.Temperature = anthropic.Float(*c.settings.Temperature)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// Generate returns the concatenated text blocks of the reply
func (c *AnthropicClient) Generate(ctx context.Context, messages []Message) (string, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         c.settings.Model,
		"message_count": len(messages),
	}).Info("Calling Anthropic")

	msg, err := c.client.Messages.New(ctx, c.params(messages))
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Stream yields text deltas as they arrive
func (c *AnthropicClient) Stream(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         c.settings.Model,
		"message_count": len(messages),
	}).Info("Calling Anthropic (streaming)")

	stream := c.client.Messages.NewStreaming(ctx, c.params(messages))
	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok || delta.Delta.Type != "text_delta" || delta.Delta.Text == "" {
				continue
			}
			select {
			case chunks <- StreamChunk{Content: delta.Delta.Text}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case chunks <- StreamChunk{Err: fmt.Errorf("anthropic streaming error: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

// toAnthropicMessages splits out system text, which the Messages API takes separately
func toAnthropicMessages(messages []Message) (string, []anthropic.MessageParam) {
	var system []string
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, ExtractText(m))
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		if !m.IsMultipart() {
			blocks = append(blocks, anthropic.NewTextBlock(m.Text))
		} else {
			for _, p := range m.Parts {
				switch p.Type {
				case PartText:
					blocks = append(blocks, anthropic.NewTextBlock(p.Text))
				case PartImage:
					blocks = append(blocks, anthropic.NewImageBlockBase64(p.MediaType, p.Data))
				}
			}
		}

		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}

	return strings.Join(system, "\n\n"), out
}
