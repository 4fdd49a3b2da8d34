package llm

import "context"

// ChatClient is a configured chat model of one vendor
type ChatClient interface {
	// Settings returns the provider, model and sampling settings bound at selection time
	Settings() ClientSettings

	// Generate sends the messages and returns the full completion text
	Generate(ctx context.Context, messages []Message) (string, error)

	// Stream sends the messages and yields completion text fragments in order.
	// The channel is closed when the completion ends; a failure arrives as a chunk with Err set.
	Stream(ctx context.Context, messages []Message) (<-chan StreamChunk, error)
}

// ClientSettings are the per-request settings of a ChatClient
type ClientSettings struct {
	Provider       string
	Model          string
	TokenizerModel string
	BaseURL        string
	MaxTokens      int64
	Temperature    *float64
	Streaming      bool
}

// StreamChunk is one fragment of a streamed completion
type StreamChunk struct {
	Content string
	Err     error
}

// Selector resolves a model configuration to a chat client
type Selector interface {
	Select(provider, model string, streaming bool) ChatClient
}
