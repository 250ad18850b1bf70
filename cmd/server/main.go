package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"prepmind/internal/ai"
	"prepmind/internal/ai/registry"
	"prepmind/internal/config"
	"prepmind/internal/guidance"
	"prepmind/internal/metrics"
	"prepmind/internal/prep"
	"prepmind/internal/queue"
	"prepmind/internal/server"
	"prepmind/internal/storage"
	"prepmind/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("listen_addr", cfg.Server.ListenAddr).
		Str("db_driver", cfg.DB.Driver).
		Bool("ocr_enabled", cfg.Prep.OCREnabled).
		Msg("starting prepmind")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	m := metrics.Global()
	providers := registry.Build(cfg.AI, &http.Client{})
	for _, d := range providers.Descriptors {
		log.Info().
			Str("provider", d.Name).
			Int("priority", d.Priority).
			Str("model", d.Model).
			Msg("provider registered")
	}
	if len(providers.Descriptors) == 0 {
		log.Warn().Msg("no provider credentials configured, serving local fallback only")
	}

	var ocr prep.OCREngine
	if cfg.Prep.OCREnabled {
		ocr = &prep.TesseractEngine{Languages: cfg.Prep.OCRLanguages}
	}
	preprocessor := prep.New(prep.Config{
		OCR:           ocr,
		PDFCharLimit:  cfg.Prep.PDFCharLimit,
		TextCharLimit: cfg.Prep.TextCharLimit,
		MinOCRChars:   cfg.Prep.MinOCRChars,
		FileTimeout:   cfg.Prep.FileTimeout,
		Logger:        log.Logger,
		Metrics:       m,
	})

	dispatcher := ai.NewDispatcher(ai.DispatcherConfig{
		Descriptors:  providers.Descriptors,
		Preprocessor: preprocessor,
		Logger:       log.Logger,
		Metrics:      m,
	})

	usageQueue := queue.NewStreamQueue(rdb, cfg.Redis.UsageStream, cfg.Redis.UsageGroup, cfg.Worker.ConsumerName, cfg.Redis.UsageBlock)

	svc := guidance.NewService(guidance.Config{
		Dispatcher:   dispatcher,
		Fallback:     ai.NewFallbackGenerator(),
		Queue:        usageQueue,
		SystemPrompt: cfg.AI.SystemPrompt,
		Logger:       log.Logger,
		Metrics:      m,
	})

	srv := server.New(server.Config{
		Guidance:    svc,
		Descriptors: providers.Descriptors,
		Keys:        providers.GeminiKeys,
		Store:       store,
		TokenCache:  queue.NewTokenCache(rdb, cfg.Redis.TokenCacheTTL),
		RateLimiter: queue.NewRateLimiter(rdb, cfg.Rate.PerMinute),
		Logger:      log.Logger,
		Metrics:     m,
		HealthPath:  cfg.Server.HealthPath,
		MetricsPath: cfg.Server.MetricsPath,
	})

	errCh := make(chan error, 2)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	w := worker.New(worker.Config{
		Store:         store,
		Queue:         usageQueue,
		MaxJobRetries: cfg.Worker.MaxRetries,
		Logger:        log.Logger,
		Metrics:       m,
	})
	go func() {
		if err := w.Start(ctx, cfg.Worker.Concurrency); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("worker failed: %w", err)
		}
	}()
	log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("usage worker started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
