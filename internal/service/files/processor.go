package files

import (
	"context"
	"irouter/internal/logger"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// ImageExtensions are the file extensions treated as images
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff", ".ico", ".webp"}

// inlineMediaTypes are the types vendors accept for inline images; anything else is sent as jpeg
var inlineMediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Extension returns the lower-case extension of a reference, ignoring any query string
func Extension(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return strings.ToLower(path.Ext(ref))
}

// IsImage reports whether ref names an image file
func IsImage(ref string) bool {
	ext := Extension(ref)
	for _, e := range ImageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// ImageMIMEType returns the media type for an image reference, defaulting to image/jpeg
func ImageMIMEType(ref string) string {
	if mt, ok := inlineMediaTypes[Extension(ref)]; ok {
		return mt
	}
	return "image/jpeg"
}

// Processor classifies file references and extracts text from documents
type Processor struct {
	fetcher *Fetcher
}

// NewProcessor creates a processor that downloads through fetcher
func NewProcessor(fetcher *Fetcher) *Processor {
	return &Processor{fetcher: fetcher}
}

// IdentifyFiles splits references into images and text documents, preserving order
func (p *Processor) IdentifyFiles(refs []string) (images, texts []string) {
	for _, ref := range refs {
		if IsImage(ref) {
			images = append(images, ref)
		} else {
			texts = append(texts, ref)
		}
	}
	return images, texts
}

// ProcessFiles downloads each text reference and concatenates the contents under file headers.
// Unreadable or non UTF-8 files are skipped.
func (p *Processor) ProcessFiles(ctx context.Context, refs []string) (string, error) {
	var sb strings.Builder

	for _, ref := range refs {
		body, err := p.fetcher.Fetch(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Log.WithField("file", ref).WithError(err).Warn("Skipping unreadable file")
			continue
		}
		if !utf8.Valid(body) {
			logger.Log.WithFields(logrus.Fields{"file": ref, "bytes": len(body)}).Warn("Skipping file without text content")
			continue
		}

		sb.WriteString("\n=== File: ")
		sb.WriteString(path.Base(ref))
		sb.WriteString(" ===\n")
		sb.Write(body)
	}

	return sb.String(), nil
}

// ImageFormatInfo describes accepted image inputs
type ImageFormatInfo struct {
	SupportedFormats []string                     `json:"supported_formats"`
	MaxFileSize      string                       `json:"max_file_size"`
	UsageGuidelines  map[string]ProviderImageInfo `json:"usage_guidelines"`
	Tips             []string                     `json:"tips"`
}

// ProviderImageInfo is per-vendor guidance for image inputs
type ProviderImageInfo struct {
	Description  string   `json:"description"`
	DetailLevels []string `json:"detail_levels,omitempty"`
	Formats      []string `json:"formats,omitempty"`
	TokenCost    string   `json:"token_cost"`
}

// SupportedImageInfo returns the supported image formats and usage guidance
func SupportedImageInfo() ImageFormatInfo {
	return ImageFormatInfo{
		SupportedFormats: ImageExtensions,
		MaxFileSize:      "20MB (recommended)",
		UsageGuidelines: map[string]ProviderImageInfo{
			"openai": {
				Description:  "Supports vision with GPT-4V and GPT-4o models",
				DetailLevels: []string{"low", "high", "auto"},
				TokenCost:    "85 tokens (low detail) to 170 tokens (high detail) per image",
			},
			"anthropic": {
				Description: "Supports vision with Claude 3 models",
				Formats:     []string{"base64 encoded images"},
				TokenCost:   "~170 tokens per image (estimated)",
			},
			"google": {
				Description: "Supports vision with Gemini models",
				Formats:     []string{"base64 encoded images"},
				TokenCost:   "~170 tokens per image (estimated)",
			},
		},
		Tips: []string{
			"Images are automatically detected by file extension",
			"High-resolution images provide better analysis but cost more tokens",
			"Combine images with text prompts for best results",
			"Multiple images can be processed in a single request",
		},
	}
}
