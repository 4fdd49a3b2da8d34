package main

import (
	"context"
	"irouter/internal/api/handlers"
	"irouter/internal/app"
	"irouter/internal/auth"
	"irouter/internal/config"
	"irouter/internal/logger"
	"irouter/internal/repository/postgres"
	"irouter/internal/service/billing"
	"irouter/internal/service/chat"
	"irouter/internal/service/conversation"
	"irouter/internal/service/files"
	"irouter/internal/service/llm"
	"irouter/internal/service/retrieval"
	"irouter/internal/service/storage"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

const migrationsURL = "file://migrations"

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debug("No .env file found, using process environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	logger.Log.Info("Initializing database...")
	pg, err := postgres.NewPostgresDB(ctx, cfg.Database, migrationsURL)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize database")
	}
	defer pg.Close()

	store, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize object storage")
	}

	fetcher := files.NewFetcher(&http.Client{Timeout: 60 * time.Second}, cfg.Storage.CDNBaseURL)
	processor := files.NewProcessor(fetcher)

	var plugins []llm.GenkitPlugin
	for _, provider := range []string{"xai", "mistralai"} {
		endpoint, _ := cfg.LLM.Providers.Endpoint(provider)
		plugins = append(plugins, llm.GenkitPlugin{
			Provider: provider,
			APIKey:   cfg.LLM.APIKey(provider),
			BaseURL:  endpoint.BaseURL,
		})
	}
	registry := llm.NewRegistry(&cfg.LLM, llm.NewGenkitBackend(ctx, plugins))
	media := llm.NewOpenAIMedia(cfg.LLM.APIKey("openai"), cfg.LLM.EmbeddingModel)

	augmenter := retrieval.NewAugmenter(processor, media, pg, cfg.Retrieval)
	appConfig := app.NewConfig(pg, pg, cfg)

	chatSvc := chat.NewChatService(appConfig, chat.Dependencies{
		Selector:   registry,
		Media:      media,
		Files:      processor,
		Retriever:  augmenter,
		Assembler:  conversation.NewAssembler(pg, fetcher),
		Store:      store,
		Downloader: fetcher,
		Estimator:  billing.NewEstimator(cfg.Billing.MaxResponseTokens),
	})

	chatHandler := handlers.NewChatHandlers(appConfig, chatSvc)
	authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret)
	limiter := handlers.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return authenticator.Middleware(limiter.Middleware(h))
	}

	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /api/health", chatHandler.HealthHandler)
	mux.HandleFunc("GET /api/images/info", chatHandler.ImageInfoHandler)

	// Protected routes
	mux.HandleFunc("POST /api/chat/stream", protected(chatHandler.ChatStreamHandler))
	mux.HandleFunc("POST /api/chat", protected(chatHandler.ChatHandler))
	mux.HandleFunc("POST /api/chat/image", protected(chatHandler.ImageHandler))
	mux.HandleFunc("POST /api/chat/audio", protected(chatHandler.AudioHandler))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           corsHandler.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// Streams and media generation can run for minutes
		WriteTimeout: 0,
	}

	go sweepCollections(ctx, augmenter, cfg.Retrieval.MaxAge)
	go cleanupLimiters(ctx, limiter)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("Server shutdown failed")
		}
	}()

	logger.Log.WithFields(logrus.Fields{
		"port":            cfg.Server.Port,
		"allowed_origins": cfg.Server.AllowedOrigins,
	}).Info("Server starting")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Log.WithError(err).Fatal("Server failed to start")
	}
	logger.Log.Info("Server stopped")
}

// sweepCollections removes expired document collections between requests
func sweepCollections(ctx context.Context, augmenter *retrieval.Augmenter, maxAge time.Duration) {
	interval := maxAge / 4
	if interval < time.Hour {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			augmenter.Sweep(ctx)
		}
	}
}

func cleanupLimiters(ctx context.Context, limiter *handlers.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Cleanup()
		}
	}
}
