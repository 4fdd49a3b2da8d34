package conversation

import (
	"context"
	"encoding/base64"
	"fmt"
	"irouter/internal/logger"
	"irouter/internal/repository/db"
	"irouter/internal/service/files"
	"irouter/internal/service/llm"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// DefaultImagePrompt replaces queries too short to say anything about the attached images
const DefaultImagePrompt = "Please analyze and describe what you see in this image. Provide detailed information about the content, objects, text, symbols, or any other relevant details you can observe."

const minImageQueryLength = 5

const ragPreamble = "You are a helpful AI assistant. Use the following context from the provided documents to answer the user's question. If the answer cannot be found in the context, say so."

// ImageFetcher downloads referenced images
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
	ResolveURL(ref string) string
}

// Assembler builds provider-specific message lists
type Assembler struct {
	db     db.Database
	images ImageFetcher
}

// NewAssembler creates a new Assembler
func NewAssembler(database db.Database, images ImageFetcher) *Assembler {
	return &Assembler{
		db:     database,
		images: images,
	}
}

// SystemPrompt returns the base system prompt for a provider. Only edith has one.
func (a *Assembler) SystemPrompt(ctx context.Context, provider string) (string, error) {
	if !strings.EqualFold(provider, "edith") {
		return "", nil
	}

	prompt, err := a.db.GetSystemPrompt(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load system prompt: %w", err)
	}
	return prompt, nil
}

// BuildHistory converts stored turns into messages. Every provider except anthropic
// gets a leading system message. For deepseek the history must open with a user
// turn, otherwise it is dropped and only the system message is kept.
func BuildHistory(turns []db.ChatTurn, provider, systemPrompt string) []llm.Message {
	provider = strings.ToLower(provider)
	var messages []llm.Message

	if provider != "anthropic" {
		messages = append(messages, llm.TextMessage(llm.RoleSystem, systemPrompt))
	}

	if provider == "deepseek" {
		valid := make([]db.ChatTurn, 0, len(turns))
		for _, t := range turns {
			if t.Prompt != "" || t.Response != "" {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 {
			return messages
		}
		if valid[0].Prompt == "" {
			logger.Log.Warn("History does not start with a user turn, skipping chat history")
			return messages
		}
		turns = valid
	}

	for _, t := range turns {
		if t.Prompt != "" {
			messages = append(messages, llm.TextMessage(llm.RoleUser, t.Prompt))
		}
		if t.Response != "" {
			messages = append(messages, llm.TextMessage(llm.RoleAssistant, t.Response))
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"provider": provider,
		"turns":    len(turns),
		"messages": len(messages),
	}).Debug("Built chat history")

	return messages
}

// CurrentMessage builds the user message for the query. Images are attached only when
// the model supports them and the provider has a known image encoding; otherwise the
// returned warning says why they were dropped.
func (a *Assembler) CurrentMessage(ctx context.Context, query string, imageRefs []string, cfg db.AiConfig) (llm.Message, string) {
	if len(imageRefs) == 0 {
		return llm.TextMessage(llm.RoleUser, query), ""
	}

	provider := strings.ToLower(cfg.Provider)
	if !cfg.ImageSupport {
		warning := fmt.Sprintf("model %s does not support images; %d image(s) ignored", cfg.ID, len(imageRefs))
		logger.Log.WithField("provider", provider).Warn(warning)
		return llm.TextMessage(llm.RoleUser, query), warning
	}

	text := query
	if utf8.RuneCountInString(strings.TrimSpace(query)) < minImageQueryLength {
		text = DefaultImagePrompt
	}
	parts := []llm.ContentPart{{Type: llm.PartText, Text: text}}

	switch provider {
	case "openai", "openrouter":
		for _, ref := range imageRefs {
			parts = append(parts, llm.ContentPart{
				Type:   llm.PartImageURL,
				URL:    a.images.ResolveURL(ref),
				Detail: "high",
			})
		}
	case "anthropic", "google":
		for _, ref := range imageRefs {
			data, err := a.images.Fetch(ctx, ref)
			if err != nil {
				logger.Log.WithFields(logrus.Fields{"provider": provider, "image": ref}).WithError(err).Error("Error processing image")
				continue
			}
			encoded := base64.StdEncoding.EncodeToString(data)
			mediaType := files.ImageMIMEType(ref)
			if provider == "anthropic" {
				parts = append(parts, llm.ContentPart{Type: llm.PartImage, MediaType: mediaType, Data: encoded})
			} else {
				parts = append(parts, llm.ContentPart{Type: llm.PartImageURL, URL: llm.DataURL(mediaType, encoded)})
			}
		}
	default:
		warning := fmt.Sprintf("provider %s doesn't support vision; images will be ignored", provider)
		logger.Log.Warn(warning)
		return llm.TextMessage(llm.RoleUser, query), warning
	}

	return llm.Message{Role: llm.RoleUser, Parts: parts}, ""
}

// Transcript renders answered turns as "User: ...\nAssistant: ..." lines
func Transcript(turns []db.ChatTurn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Response == "" {
			continue
		}
		lines = append(lines, "User: "+t.Prompt+"\nAssistant: "+t.Response)
	}
	return strings.Join(lines, "\n")
}

// SystemContent renders the system instruction. Retrieved context switches to the
// document-answering template; the learning prompt is appended last.
func SystemContent(base, retrievedContext, transcript, learningPrompt string, withImages bool) string {
	var content string
	if retrievedContext != "" {
		closing := "Now, please answer the user's question based on the above context."
		if withImages {
			closing = "Now, please answer the user's question based on the above context and the images provided."
		}
		content = ragPreamble +
			"\n\nContext from documents:\n" + retrievedContext +
			"\n\nPrevious conversation:\n" + transcript +
			"\n\n" + closing
	} else {
		content = base + "\n\nPrevious conversation:\n" + transcript
	}

	if strings.TrimSpace(learningPrompt) != "" {
		content += "\n\n" + learningPrompt
	}
	return content
}

// Compose produces the final message list: system content, prior messages, then the
// current question. Messages without content are dropped. Anthropic takes no system
// role, so the system content is folded into the first user message instead.
func Compose(provider, systemContent string, history []llm.Message, current llm.Message) []llm.Message {
	anthropic := strings.EqualFold(provider, "anthropic")
	messages := make([]llm.Message, 0, len(history)+2)

	if !anthropic {
		messages = appendIfContent(messages, llm.TextMessage(llm.RoleSystem, systemContent))
	}
	for _, m := range history {
		if m.Role == llm.RoleSystem {
			continue
		}
		messages = appendIfContent(messages, m)
	}
	messages = appendIfContent(messages, current)

	if anthropic && strings.TrimSpace(systemContent) != "" {
		foldSystem(messages, systemContent)
	}
	return messages
}

func appendIfContent(messages []llm.Message, m llm.Message) []llm.Message {
	if !llm.HasContent(m) {
		return messages
	}
	return append(messages, m)
}

func foldSystem(messages []llm.Message, systemContent string) {
	for i, m := range messages {
		if m.Role != llm.RoleUser {
			continue
		}
		if m.IsMultipart() {
			parts := make([]llm.ContentPart, 0, len(m.Parts)+1)
			parts = append(parts, llm.ContentPart{Type: llm.PartText, Text: systemContent})
			messages[i].Parts = append(parts, m.Parts...)
		} else {
			messages[i].Text = systemContent + "\n\n" + m.Text
		}
		return
	}
}
