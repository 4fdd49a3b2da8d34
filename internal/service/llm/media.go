package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"irouter/internal/logger"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

const (
	ImageModel  = "dall-e-2"
	SpeechModel = "gpt-4o-mini-tts"
	SpeechVoice = "alloy"
)

// ImageUsage is the token usage a vendor reports for an image generation
type ImageUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// GeneratedImage is the result of an image generation call
type GeneratedImage struct {
	URL   string
	Usage *ImageUsage
}

// OpenAIMedia generates images and speech and computes embeddings with the OpenAI API
type OpenAIMedia struct {
	client         openai.Client
	embeddingModel string
}

// NewOpenAIMedia creates the media client
func NewOpenAIMedia(apiKey, embeddingModel string, opts ...option.RequestOption) *OpenAIMedia {
	requestOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIMedia{
		client:         openai.NewClient(requestOpts...),
		embeddingModel: embeddingModel,
	}
}

// GenerateImage creates one 1024x1024 image and returns its temporary URL
func (m *OpenAIMedia) GenerateImage(ctx context.Context, prompt string) (*GeneratedImage, error) {
	logger.Log.WithField("prompt_chars", len(prompt)).Info("Generating image")

	resp, err := m.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModelDallE2,
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, fmt.Errorf("image generation returned no image")
	}

	image := &GeneratedImage{URL: resp.Data[0].URL}

	// usage is only reported by some image models
	var raw struct {
		Usage *ImageUsage `json:"usage"`
	}
	if err := json.Unmarshal([]byte(resp.RawJSON()), &raw); err == nil && raw.Usage != nil && raw.Usage.TotalTokens > 0 {
		image.Usage = raw.Usage
	}

	return image, nil
}

// SynthesizeSpeech renders text as mp3 audio; the caller closes the reader
func (m *OpenAIMedia) SynthesizeSpeech(ctx context.Context, text string) (io.ReadCloser, error) {
	logger.Log.WithField("text_chars", len(text)).Info("Synthesizing speech")

	resp, err := m.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(SpeechModel),
		Voice:          openai.AudioSpeechNewParamsVoice(SpeechVoice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat("mp3"),
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	return resp.Body, nil
}

// Embed returns one embedding per input text, in input order
func (m *OpenAIMedia) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(m.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if int(item.Index) >= len(vectors) {
			continue
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[item.Index] = vec
	}

	logger.Log.WithFields(logrus.Fields{"texts": len(texts), "model": m.embeddingModel}).Debug("Computed embeddings")
	return vectors, nil
}
