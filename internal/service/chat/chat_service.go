package chat

import (
	"context"
	"fmt"
	"io"
	"irouter/internal/app"
	"irouter/internal/logger"
	"irouter/internal/repository/db"
	"irouter/internal/service/billing"
	"irouter/internal/service/conversation"
	"irouter/internal/service/llm"
	"irouter/internal/service/points"
	"irouter/internal/service/storage"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Mode selects a generation flow
type Mode string

const (
	ModeStream Mode = "stream"
	ModeText   Mode = "text"
	ModeImage  Mode = "image"
	ModeAudio  Mode = "audio"
)

// Request contains all the parameters of one generation
type Request struct {
	Query          string
	Files          []string
	ChatHistory    []db.ChatTurn
	Model          string
	Email          string // Extracted from auth context
	SessionID      string
	ReGenerate     bool
	ChatType       int
	LearningPrompt string // Streaming chat only
}

// Result is the outcome of a successful generation
type Result struct {
	Text     string
	Points   float64
	Elapsed  time.Duration
	Usage    billing.TokenUsage
	Mode     ProcessingMode
	Warnings []string
}

// FileProcessor splits file references into images and text documents
type FileProcessor interface {
	IdentifyFiles(refs []string) (images, texts []string)
}

// Retriever indexes documents and searches them
type Retriever interface {
	Index(ctx context.Context, textRefs []string) (*db.Collection, error)
	Retrieve(ctx context.Context, collection *db.Collection, query string) ([]db.ScoredChunk, error)
}

// MediaGenerator synthesizes images and speech
type MediaGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (*llm.GeneratedImage, error)
	SynthesizeSpeech(ctx context.Context, text string) (io.ReadCloser, error)
}

// ObjectStore uploads generated media and knows its public URL
type ObjectStore interface {
	UploadFile(ctx context.Context, localPath, key string, opts storage.UploadOptions) error
	URL(key string) string
}

// Downloader fetches remote files
type Downloader interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Dependencies are the collaborators of the chat service
type Dependencies struct {
	Selector   llm.Selector
	Media      MediaGenerator
	Files      FileProcessor
	Retriever  Retriever
	Assembler  *conversation.Assembler
	Store      ObjectStore
	Downloader Downloader
	Estimator  *billing.Estimator
}

// ChatService runs the generation flows
type ChatService struct {
	db        db.Database
	config    *app.Config
	points    *points.Service
	deps      Dependencies
	estimator *billing.Estimator
	tempDir   string
	now       func() time.Time
}

// NewChatService creates a new ChatService
func NewChatService(config *app.Config, deps Dependencies) *ChatService {
	estimator := deps.Estimator
	if estimator == nil {
		estimator = billing.NewEstimator(config.AppConfig.Billing.MaxResponseTokens)
	}

	return &ChatService{
		db:        config.DB,
		config:    config,
		points:    points.NewService(config.DB, config.AppConfig.Billing.DefaultPlanID),
		deps:      deps,
		estimator: estimator,
		tempDir:   config.AppConfig.Storage.TempDir,
		now:       time.Now,
	}
}

// flow is the per-request state shared by the pipeline stages
type flow struct {
	req     Request
	cfg     db.AiConfig
	account *points.Account
	plan    FilePlan
	emit    func(string) error
	log     *logrus.Entry

	// Filled by prepare
	client         llm.ChatClient
	messages       []llm.Message
	estimateInput  []llm.Message
	systemContent  string
	context        string
	tokenizerModel string
	prompt         string
	imageUsage     *llm.ImageUsage
	warnings       []string
}

func (f *flow) warn(msg string) {
	if msg == "" {
		return
	}
	f.warnings = append(f.warnings, msg)
	f.log.Warn(msg)
}

// strategy is the per-mode behavior plugged into the pipeline
type strategy interface {
	prepare(ctx context.Context, f *flow) error
	estimate(f *flow) billing.TokenUsage
	invoke(ctx context.Context, f *flow) (string, error)
	meter(f *flow, output string) (billing.TokenUsage, error)
	title(output string) string
}

func (s *ChatService) strategyFor(mode Mode) (strategy, error) {
	switch mode {
	case ModeStream:
		return chatMode{s: s, streaming: true}, nil
	case ModeText:
		return chatMode{s: s}, nil
	case ModeImage:
		return imageMode{s: s}, nil
	case ModeAudio:
		return audioMode{s: s}, nil
	}
	return nil, fmt.Errorf("unknown generation mode %q", mode)
}

// Generate runs one flow. emit receives streamed text and trailers in ModeStream and may be nil otherwise.
// Nothing is persisted and no points are debited unless the whole flow succeeds.
func (s *ChatService) Generate(ctx context.Context, mode Mode, req Request, emit func(string) error) (*Result, error) {
	strat, err := s.strategyFor(mode)
	if err != nil {
		return nil, internalError(err)
	}
	if mode == ModeStream && emit == nil {
		emit = func(string) error { return nil }
	}
	if mode != ModeStream {
		emit = nil
	}

	f := &flow{
		req:  req,
		emit: emit,
		log:  logger.ForFlow(string(mode), req.Email, req.SessionID, req.Model),
	}
	return s.run(ctx, strat, f)
}

func (s *ChatService) run(ctx context.Context, strat strategy, f *flow) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			f.log.WithField("panic", r).Error("Generation flow panicked")
			result, err = nil, internalError(fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	f.log.WithField("query_chars", len(f.req.Query)).Info("Generating response")

	// Load config
	cfg, err := s.db.GetAiConfig(ctx, f.req.Model)
	if err != nil || cfg == nil {
		f.log.WithError(err).Warn("Invalid AI configuration")
		return nil, configurationError(f.req.Model, err)
	}
	f.cfg = *cfg
	f.log = f.log.WithField("provider", cfg.Provider)

	// Init points
	f.account, err = s.points.Initialize(ctx, f.req.Email)
	if err != nil {
		return nil, internalError(err)
	}

	// Build context
	if len(f.req.Files) > 0 {
		images, texts := s.deps.Files.IdentifyFiles(f.req.Files)
		f.plan = PlanFiles(images, texts, cfg.ImageSupport)
		f.warn(f.plan.Warning)
	} else {
		f.plan = FilePlan{Mode: TextOnly}
	}
	f.log = f.log.WithField("processing_mode", f.plan.Mode)

	if err := strat.prepare(ctx, f); err != nil {
		return nil, AsFlowError(err)
	}

	// Estimate and gate
	estimate := strat.estimate(f)
	estimatedPoints := billing.UsagePoints(estimate, f.cfg)
	f.log.WithFields(logrus.Fields{
		"estimated_tokens": estimate.TotalTokens,
		"estimated_points": estimatedPoints,
	}).Info("Estimated usage")

	if !f.account.CheckUserAvailableToChat(estimatedPoints, f.cfg) {
		f.log.WithField("available_points", f.account.AvailablePoints()).Warn("Insufficient points available")
		return nil, quotaExceeded(QuotaDetails{
			EstimatedPoints: estimatedPoints,
			AvailablePoints: f.account.AvailablePoints(),
			PointsUsed:      f.account.PointsUsed(),
		})
	}

	// Invoke
	output, err := strat.invoke(ctx, f)
	if err != nil {
		if isCancelled(ctx, err) {
			f.log.Info("Request cancelled by caller")
			return nil, err
		}
		f.log.WithError(err).Error("Error invoking provider")
		return nil, AsFlowError(err)
	}
	if ctx.Err() != nil {
		f.log.Info("Request cancelled by caller")
		return nil, ctx.Err()
	}

	// Meter
	usage, err := strat.meter(f, output)
	if err != nil {
		f.log.WithField("kind", KindMetering).WithError(err).Error("Error calculating token usage")
		usage = billing.TokenUsage{}
	}
	pts := billing.UsagePoints(usage, f.cfg)
	elapsed := time.Since(start)

	if f.emit != nil {
		if err := f.emit(PointsTrailer(pts)); err != nil {
			return nil, err
		}
		if err := f.emit(OutputTimeTrailer(elapsed)); err != nil {
			return nil, err
		}
	}

	// Persist
	if err := s.persist(ctx, f, output, strat.title(output), usage, pts, elapsed); err != nil {
		f.log.WithError(err).Error("Error persisting logs")
		return nil, internalError(err)
	}

	f.log.WithFields(logrus.Fields{
		"input_tokens":  usage.PromptTokens,
		"output_tokens": usage.CompletionTokens,
		"points":        pts,
		"elapsed_s":     elapsed.Seconds(),
	}).Info("Completed response")

	return &Result{
		Text:     output,
		Points:   pts,
		Elapsed:  elapsed,
		Usage:    usage,
		Mode:     f.plan.Mode,
		Warnings: f.warnings,
	}, nil
}

func (s *ChatService) persist(ctx context.Context, f *flow, output, title string, usage billing.TokenUsage, pts float64, elapsed time.Duration) error {
	now := s.now()

	chatLog := db.ChatLog{
		Email:      f.req.Email,
		SessionID:  f.req.SessionID,
		ReGenerate: f.req.ReGenerate,
		Title:      title,
		Chat: db.ChatEntry{
			Prompt:      f.req.Query,
			Response:    output,
			Timestamp:   now,
			InputToken:  usage.PromptTokens,
			OutputToken: usage.CompletionTokens,
			OutputTime:  elapsed.Seconds(),
			ChatType:    f.req.ChatType,
			FileURLs:    f.req.Files,
			Model:       f.req.Model,
			Points:      pts,
			Count:       1,
		},
	}
	if err := s.db.SaveChatLog(ctx, chatLog); err != nil {
		return fmt.Errorf("failed to save chat log: %w", err)
	}

	usageLog := db.UsageLog{
		Date:    now,
		UserID:  f.account.UserID(),
		ModelID: f.req.Model,
		PlanID:  f.account.PlanID(),
		Stats: db.UsageStats{
			TokenUsage: db.TokenStats{
				Input:  usage.PromptTokens,
				Output: usage.CompletionTokens,
				Total:  usage.TotalTokens,
			},
			PointsUsage: pts,
		},
	}
	if err := s.db.SaveUsageLog(ctx, usageLog); err != nil {
		return fmt.Errorf("failed to save usage log: %w", err)
	}

	return f.account.SaveUserPoints(ctx, pts)
}

// retrieveContext indexes the plan's text files and searches them for the query.
// It returns nil chunks when nothing could be indexed.
func (s *ChatService) retrieveContext(ctx context.Context, f *flow) ([]db.ScoredChunk, error) {
	if !f.plan.Mode.UsesRetrieval() {
		return nil, nil
	}

	collection, err := s.deps.Retriever.Index(ctx, f.plan.Texts)
	if err != nil {
		return nil, collectionError(err)
	}
	if collection == nil {
		return nil, nil
	}

	chunks, err := s.deps.Retriever.Retrieve(ctx, collection, f.req.Query)
	if err != nil {
		return nil, internalError(err)
	}
	f.log.WithFields(logrus.Fields{"collection": collection.Name, "chunks": len(chunks)}).Info("Retrieved documents")
	return chunks, nil
}

func render(res *Result) string {
	return res.Text + PointsTrailer(res.Points) + OutputTimeTrailer(res.Elapsed)
}

func (s *ChatService) respond(ctx context.Context, mode Mode, req Request) string {
	res, err := s.Generate(ctx, mode, req, nil)
	if err != nil {
		return ErrorTrailer(err)
	}
	return render(res)
}

// StreamResponse streams the answer followed by the trailers. The channel is closed when
// the flow ends; cancelling ctx stops the flow without persisting anything.
func (s *ChatService) StreamResponse(ctx context.Context, req Request) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		emit := func(text string) error {
			select {
			case out <- text:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if _, err := s.Generate(ctx, ModeStream, req, emit); err != nil {
			if ctx.Err() != nil {
				return
			}
			_ = emit(ErrorTrailer(err))
		}
	}()

	return out
}

// TextResponse returns the full answer followed by the trailers
func (s *ChatService) TextResponse(ctx context.Context, req Request) string {
	return s.respond(ctx, ModeText, req)
}

// ImageResponse generates an image and returns its URL followed by the trailers
func (s *ChatService) ImageResponse(ctx context.Context, req Request) string {
	return s.respond(ctx, ModeImage, req)
}

// AudioResponse synthesizes speech and returns its URL followed by the trailers
func (s *ChatService) AudioResponse(ctx context.Context, req Request) string {
	return s.respond(ctx, ModeAudio, req)
}

// firstParagraph returns the text up to the first blank line
func firstParagraph(text string) string {
	title, _, _ := strings.Cut(text, "\n\n")
	return title
}

// withTempDir runs fn with a scratch directory that is removed afterwards
func (s *ChatService) withTempDir(fn func(dir string) error) error {
	dir, err := os.MkdirTemp(s.tempDir, "irouter-media-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	return fn(dir)
}
