package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"studylm/internal/app"
	"studylm/internal/chat"
	"studylm/internal/config"
	"studylm/internal/guide"
	"studylm/internal/progress"
	"studylm/internal/quiz"
	"studylm/internal/server"
	"studylm/internal/storage"
	"studylm/internal/util"
	"studylm/pkg/ai"
)

func main() {
	// A missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	files, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("failed to init upload store: %v", err)
	}
	uris, err := storage.NewURIStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to init uri store: %v", err)
	}
	guides, err := storage.NewGuideStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to init guide store: %v", err)
	}

	client, err := ai.NewClient(cfg.GeminiAPIKey)
	if err != nil {
		log.Fatalf("failed to init gemini client: %v", err)
	}
	quizGen := quiz.NewGenerator(client, cfg.QuizModel, logger)
	guideGen := guide.NewGenerator(client, client, quizGen, cfg.StudyGuideModel, logger)

	tracker := progress.NewTracker()
	go tracker.Run(ctx, cfg.ProgressSweepInterval(), cfg.ProgressMaxAge())

	appCore := app.New(ctx, app.Deps{
		Config:   cfg,
		Logger:   logger,
		Gateway:  client,
		Guide:    guideGen,
		Progress: tracker,
		Files:    files,
		URIs:     uris,
		Guides:   guides,
		Chats:    chat.NewStore(app.GeminiChatBackend{Client: client}, config.DefaultChatModel, logger),
		Jobs:     app.NewQuizJobs(quizGen, cfg.QuizConcurrency, logger),
	})

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		UploadRateLimitPerMinute: cfg.UploadRateLimitPerMinute,
		QuizRateLimitPerMinute:   cfg.QuizRateLimitPerMinute,
		MaxUploadBytes:           cfg.MaxUploadBytes,
		AllowedExtensions:        cfg.AllowedExtensions,
		TrustedProxies:           cfg.TrustedProxies,
		SSEIdleTimeout:           cfg.SSEIdleTimeout(),
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: SSE responses stay open until the idle
		// timeout inside the handler closes them.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
