package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"server/internal/adapter/repo"
	"server/internal/board"
	"server/internal/generation"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/metrics"
	"server/internal/providers/genai"
	"server/internal/providers/image"
	"server/internal/storage"
	"server/internal/tier"
	"server/internal/watermark"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()

	store, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: storage setup failed")
	}
	boards, err := board.NewCatalog(cfg.BoardTemplatesPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: board catalog setup failed")
	}

	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: gemini client setup failed")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	users := repo.NewUserRepository(pool)
	jobs := repo.NewJobRepository(pool)
	images := repo.NewImageRepository(pool)
	tasks := repo.NewTaskRepository(pool)

	svc := generation.NewService(generation.Options{
		DB:                pool,
		Gate:              tier.NewGate(users),
		Jobs:              jobs,
		Images:            images,
		Tasks:             tasks,
		Store:             store,
		Boards:            boards,
		Generator:         image.NewGeminiGenerator(geminiClient),
		Watermarker:       watermark.NewCompositor(logger),
		Metrics:           metrics.NewPipelineMetrics(registry),
		Logger:            logger,
		GenerationTimeout: cfg.GenerationTimeout,
		Concurrency:       cfg.WorkerConcurrency,
	})

	app := &handlers.App{
		Users:   users,
		Jobs:    jobs,
		Images:  images,
		Service: svc,
		Store:   store,
		Boards:  boards,
		Logger:  logger,
	}

	router := httpapi.NewRouter(httpapi.Options{
		App:            app,
		JWTSecret:      cfg.JWTSecret,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimitPerMin,
		Registry:       registry,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
