package billing

import (
	"fmt"
	"irouter/internal/logger"
	"irouter/internal/service/llm"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sirupsen/logrus"
)

const (
	defaultEncoding = "cl100k_base"

	perMessageTokens = 4
	namePenalty      = -1
	replyPriming     = 2
	lowDetailImage   = 85
	highDetailImage  = 170
)

// TokenUsage is a prompt/completion token pair. Build it with NewTokenUsage.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// NewTokenUsage returns a usage whose total is the sum of its parts
func NewTokenUsage(prompt, completion int) TokenUsage {
	return TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// Encoder counts the tokens of a text
type Encoder interface {
	Count(text string) int
}

type tiktokenEncoder struct {
	enc *tiktoken.Tiktoken
}

func (e tiktokenEncoder) Count(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}

// heuristicEncoder approximates one token per four characters
type heuristicEncoder struct{}

func (heuristicEncoder) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

type encoderLoader func(model string) (Encoder, error)

func loadTiktoken(model string) (Encoder, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return tiktokenEncoder{enc: enc}, nil
}

func loadDefaultTiktoken(string) (Encoder, error) {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, err
	}
	return tiktokenEncoder{enc: enc}, nil
}

// Estimator counts tokens with a per-model tokenizer cache
type Estimator struct {
	mu       sync.Mutex
	cache    map[string]Encoder
	loaders  []encoderLoader
	maxReply int
}

// NewEstimator creates an estimator backed by tiktoken; maxReply caps response estimates
func NewEstimator(maxReply int) *Estimator {
	return newEstimator(maxReply, loadTiktoken, loadDefaultTiktoken)
}

// NewHeuristicEstimator creates an estimator that never loads tokenizer files
func NewHeuristicEstimator(maxReply int) *Estimator {
	return newEstimator(maxReply)
}

func newEstimator(maxReply int, loaders ...encoderLoader) *Estimator {
	if maxReply <= 0 {
		maxReply = llm.MaxTokens
	}
	return &Estimator{
		cache:    make(map[string]Encoder),
		loaders:  loaders,
		maxReply: maxReply,
	}
}

// Encoding returns the tokenizer for model: its own encoding, else the general-purpose
// encoding, else a character heuristic. It never fails.
func (e *Estimator) Encoding(model string) Encoder {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.cache[model]; ok {
		return enc
	}

	var enc Encoder = heuristicEncoder{}
	for i, load := range e.loaders {
		loaded, err := load(model)
		if err == nil && loaded != nil {
			enc = loaded
			break
		}
		logger.Log.WithFields(logrus.Fields{"model": model, "attempt": i}).WithError(err).Warn("Tokenizer unavailable, trying fallback")
	}

	e.cache[model] = enc
	return enc
}

// MessageTokens counts a message list the way chat completions are billed:
// fixed overhead per message, every string field, image parts at a flat rate, plus reply priming.
func (e *Estimator) MessageTokens(messages []llm.Message, model string) int {
	enc := e.Encoding(model)
	n := 0

	for _, m := range messages {
		n += perMessageTokens
		n += enc.Count(string(m.Role))
		if m.Name != "" {
			n += enc.Count(m.Name) + namePenalty
		}

		if !m.IsMultipart() {
			n += enc.Count(m.Text)
			continue
		}
		for _, p := range m.Parts {
			switch p.Type {
			case llm.PartText:
				n += enc.Count(p.Text)
			case llm.PartImageURL:
				if p.Detail == "low" {
					n += lowDetailImage
				} else {
					n += highDetailImage
				}
			case llm.PartImage:
				n += highDetailImage
			}
		}
	}

	return n + replyPriming
}

// ResponseTokens estimates a reply as 1.5x the prompt, capped
func (e *Estimator) ResponseTokens(promptTokens int) int {
	return min(int(float64(promptTokens)*1.5), e.maxReply)
}

// EstimateChat estimates a chat request: messages plus the system template and retrieved context
func (e *Estimator) EstimateChat(messages []llm.Message, systemTemplate, model, context string) TokenUsage {
	enc := e.Encoding(model)
	prompt := e.MessageTokens(messages, model) + enc.Count(systemTemplate) + enc.Count(context)
	return NewTokenUsage(prompt, e.ResponseTokens(prompt))
}

// EstimateMedia estimates an image or speech request at one token per four characters
func EstimateMedia(text string) TokenUsage {
	return NewTokenUsage(utf8.RuneCountInString(text)/4, 0)
}

// Meter counts the actual usage of a finished chat exchange
func (e *Estimator) Meter(messages []llm.Message, response, model string) (usage TokenUsage, err error) {
	defer func() {
		if r := recover(); r != nil {
			usage = TokenUsage{}
			err = fmt.Errorf("token metering failed: %v", r)
		}
	}()

	prompt := e.MessageTokens(messages, model)
	completion := e.Encoding(model).Count(response)
	return NewTokenUsage(prompt, completion), nil
}
