package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"server/internal/adapter/repo"
	"server/internal/board"
	"server/internal/domain"
	"server/internal/generation"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/metrics"
	"server/internal/providers/genai"
	"server/internal/providers/image"
	"server/internal/storage"
	"server/internal/tier"
	"server/internal/watermark"
)

type worker struct {
	ctx          context.Context
	svc          *generation.Service
	jobs         domain.JobRepository
	tasks        domain.TaskRepository
	logger       infra.Logger
	pollInterval time.Duration
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	store, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage setup failed")
	}
	boards, err := board.NewCatalog(cfg.BoardTemplatesPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: board catalog setup failed")
	}

	// The key can live in the database instead of the environment so
	// deployments can rotate it without a restart.
	geminiAPIKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if geminiAPIKey == "" {
		credStore := credentials.NewStore(pool)
		keyFromStore, err := credStore.GeminiAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load gemini api key from store")
		} else {
			geminiAPIKey = keyFromStore
		}
	}

	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:     geminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: cfg.GenerationTimeout},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure gemini client")
	}
	if geminiClient.Synthetic() {
		logger.Warn().Str("model", geminiClient.Model()).Msg("worker: gemini api key missing, using synthetic portraits")
	}

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
		Metrics:           metrics.NewPipelineMetrics(prometheus.DefaultRegisterer),
		Logger:            logger,
		GenerationTimeout: cfg.GenerationTimeout,
		Concurrency:       cfg.WorkerConcurrency,
	})

	w := &worker{
		ctx:          ctx,
		svc:          svc,
		jobs:         jobs,
		tasks:        tasks,
		logger:       logger,
		pollInterval: cfg.WorkerPollInterval,
	}
	if err := w.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run polls the job queue and the maintenance task queue until the context
// ends. A poll with no work in either queue sleeps one interval.
func (w *worker) Run() error {
	w.logger.Info().Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		default:
		}

		worked := w.claimJob()
		worked = w.claimTask() || worked
		if !worked {
			select {
			case <-w.ctx.Done():
				return w.ctx.Err()
			case <-time.After(w.pollInterval):
			}
		}
	}
}

func (w *worker) claimJob() bool {
	job, err := w.jobs.ClaimPending(w.ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			w.logger.Error().Err(err).Msg("worker: claim job failed")
		}
		return false
	}

	w.logger.Info().Str("job_id", job.ID).Str("tier", string(job.Tier)).Msg("worker: picked job")
	if err := w.svc.ProcessJob(w.ctx, job.ID); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: job processing failed")
	}
	return true
}

func (w *worker) claimTask() bool {
	task, err := w.tasks.Claim(w.ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			w.logger.Error().Err(err).Msg("worker: claim task failed")
		}
		return false
	}

	w.logger.Info().Str("task_id", task.ID).Str("task_type", task.TaskType).Msg("worker: picked task")
	if err := w.svc.HandleTask(w.ctx, task); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("worker: task failed")
		if ferr := w.tasks.Fail(w.ctx, task.ID, err.Error()); ferr != nil {
			w.logger.Error().Err(ferr).Str("task_id", task.ID).Msg("worker: record task failure")
		}
		return true
	}
	if err := w.tasks.Complete(w.ctx, task.ID); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("worker: record task completion")
	}
	return true
}
