package chat

import (
	"context"
	"fmt"
	"io"
	"irouter/internal/service/billing"
	"irouter/internal/service/conversation"
	"irouter/internal/service/retrieval"
	"irouter/internal/service/storage"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	imageTitle = "Image Generation"
	audioTitle = "Audio Generation"

	keyTimeFormat = "20060102_150405"
)

// chatMode answers with a chat model, streamed or in one piece
type chatMode struct {
	s         *ChatService
	streaming bool
}

func (m chatMode) prepare(ctx context.Context, f *flow) error {
	s := m.s
	f.client = s.deps.Selector.Select(f.cfg.Provider, f.cfg.Model, m.streaming)
	f.tokenizerModel = f.client.Settings().TokenizerModel
	if f.tokenizerModel == "" {
		f.tokenizerModel = f.cfg.Model
	}

	systemPrompt, err := s.deps.Assembler.SystemPrompt(ctx, f.cfg.Provider)
	if err != nil {
		return internalError(err)
	}
	history := conversation.BuildHistory(f.req.ChatHistory, f.cfg.Provider, systemPrompt)

	chunks, err := s.retrieveContext(ctx, f)
	if err != nil {
		return err
	}
	f.context = retrieval.SourcedContext(chunks)

	current, warning := s.deps.Assembler.CurrentMessage(ctx, f.req.Query, f.plan.Images, f.cfg)
	f.warn(warning)

	transcript := conversation.Transcript(f.req.ChatHistory)
	f.systemContent = conversation.SystemContent(systemPrompt, f.context, transcript, f.req.LearningPrompt, current.HasImages())

	f.estimateInput = append(history, current)
	f.messages = conversation.Compose(f.cfg.Provider, f.systemContent, history, current)

	f.log.WithFields(logrus.Fields{
		"messages":   len(f.messages),
		"multimodal": current.HasImages(),
	}).Debug("Prepared messages")
	return nil
}

func (m chatMode) estimate(f *flow) billing.TokenUsage {
	return m.s.estimator.EstimateChat(f.estimateInput, f.systemContent, f.tokenizerModel, f.context)
}

func (m chatMode) invoke(ctx context.Context, f *flow) (string, error) {
	if !m.streaming {
		text, err := f.client.Generate(ctx, f.messages)
		if err != nil {
			return "", providerError(err)
		}
		return text, nil
	}

	chunks, err := f.client.Stream(ctx, f.messages)
	if err != nil {
		return "", providerError(err)
	}

	var full strings.Builder
	for {
		select {
		case <-ctx.Done():
			return full.String(), ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return full.String(), nil
			}
			if chunk.Err != nil {
				return full.String(), providerError(fmt.Errorf("error during response streaming: %w", chunk.Err))
			}
			if chunk.Content == "" {
				continue
			}
			full.WriteString(chunk.Content)
			if err := f.emit(chunk.Content); err != nil {
				return full.String(), err
			}
		}
	}
}

func (m chatMode) meter(f *flow, output string) (billing.TokenUsage, error) {
	return m.s.estimator.Meter(f.messages, output, f.cfg.Model)
}

func (chatMode) title(output string) string {
	return firstParagraph(output)
}

// enhancedPrompt prefixes the query with retrieved document text for media generation
func (s *ChatService) enhancedPrompt(ctx context.Context, f *flow, instruction string) error {
	chunks, err := s.retrieveContext(ctx, f)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		f.prompt = f.req.Query
		return nil
	}

	f.context = retrieval.PlainContext(chunks)
	f.prompt = "Context from files:\n" + f.context + "\n\n" + instruction + f.req.Query
	return nil
}

// imageMode generates one image and rehosts it on object storage
type imageMode struct {
	s *ChatService
}

func (m imageMode) prepare(ctx context.Context, f *flow) error {
	return m.s.enhancedPrompt(ctx, f, "Generate image based on this context and the following description: ")
}

func (imageMode) estimate(f *flow) billing.TokenUsage {
	return billing.EstimateMedia(f.prompt)
}

func (m imageMode) invoke(ctx context.Context, f *flow) (string, error) {
	image, err := m.s.deps.Media.GenerateImage(ctx, f.prompt)
	if err != nil {
		return "", providerError(err)
	}
	f.imageUsage = image.Usage

	url, err := m.s.rehostImage(ctx, image.URL)
	if err != nil {
		f.log.WithField("kind", KindStorageUpload).WithError(err).Error("Error uploading image, using provider URL")
		return image.URL, nil
	}
	return url, nil
}

func (imageMode) meter(f *flow, _ string) (billing.TokenUsage, error) {
	if f.imageUsage != nil {
		return billing.NewTokenUsage(f.imageUsage.InputTokens, f.imageUsage.OutputTokens), nil
	}
	return billing.EstimateMedia(f.prompt), nil
}

func (imageMode) title(string) string {
	return imageTitle
}

func (s *ChatService) rehostImage(ctx context.Context, providerURL string) (string, error) {
	data, err := s.deps.Downloader.Fetch(ctx, providerURL)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}

	name := "image_" + s.now().Format(keyTimeFormat) + ".png"
	key := "images/" + name
	err = s.withTempDir(func(dir string) error {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("failed to write image: %w", err)
		}
		return s.deps.Store.UploadFile(ctx, path, key, storage.UploadOptions{ACL: "public-read", ContentType: "image/png"})
	})
	if err != nil {
		return "", err
	}
	return s.deps.Store.URL(key), nil
}

// audioMode synthesizes speech and uploads it to object storage
type audioMode struct {
	s *ChatService
}

func (m audioMode) prepare(ctx context.Context, f *flow) error {
	return m.s.enhancedPrompt(ctx, f, "Generate audio based on this context and the following text: ")
}

func (audioMode) estimate(f *flow) billing.TokenUsage {
	return billing.EstimateMedia(f.prompt)
}

func (m audioMode) invoke(ctx context.Context, f *flow) (string, error) {
	s := m.s
	speech, err := s.deps.Media.SynthesizeSpeech(ctx, f.prompt)
	if err != nil {
		return "", providerError(err)
	}
	defer speech.Close()

	name := "audio_" + s.now().Format(keyTimeFormat) + ".mp3"
	key := "audio/" + name
	err = s.withTempDir(func(dir string) error {
		path := filepath.Join(dir, name)
		if err := writeFile(path, speech); err != nil {
			return providerError(fmt.Errorf("failed to read speech: %w", err))
		}
		if err := s.deps.Store.UploadFile(ctx, path, key, storage.UploadOptions{ACL: "public-read", ContentType: "audio/mpeg"}); err != nil {
			return storageError(err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return s.deps.Store.URL(key), nil
}

func (audioMode) meter(f *flow, _ string) (billing.TokenUsage, error) {
	return billing.EstimateMedia(f.prompt), nil
}

func (audioMode) title(string) string {
	return audioTitle
}

func writeFile(path string, r io.Reader) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
