// Package generation orchestrates the portrait pipeline: tier admission, job
// and image-row creation, per-image generation units, and the maintenance
// operations (single-image retry, premium re-render sweep).
package generation

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"server/internal/board"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/metrics"
	"server/internal/prompt"
	"server/internal/providers/image"
	"server/internal/storage"
	"server/internal/tier"
	"server/internal/watermark"
)

// txBeginner is the slice of pgxpool.Pool the service needs. Kept narrow so
// tests can supply a fake transaction source.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Options collects the service dependencies.
type Options struct {
	DB          txBeginner
	Gate        *tier.Gate
	Jobs        domain.JobRepository
	Images      domain.ImageRepository
	Tasks       domain.TaskRepository
	Store       storage.Store
	Boards      *board.Catalog
	Generator   image.Generator
	Watermarker *watermark.Compositor
	Metrics     *metrics.PipelineMetrics
	Logger      infra.Logger

	// GenerationTimeout bounds one generator call; Concurrency bounds the
	// number of in-flight units per job.
	GenerationTimeout time.Duration
	Concurrency       int
}

// Service runs the generation pipeline.
type Service struct {
	db      txBeginner
	gate    *tier.Gate
	jobs    domain.JobRepository
	images  domain.ImageRepository
	tasks   domain.TaskRepository
	store   storage.Store
	boards  *board.Catalog
	gen     image.Generator
	mark    *watermark.Compositor
	metrics *metrics.PipelineMetrics
	logger  infra.Logger

	timeout     time.Duration
	concurrency int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService wires the generation service.
func NewService(opts Options) *Service {
	timeout := opts.GenerationTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Service{
		db:          opts.DB,
		gate:        opts.Gate,
		jobs:        opts.Jobs,
		images:      opts.Images,
		tasks:       opts.Tasks,
		store:       opts.Store,
		boards:      opts.Boards,
		gen:         opts.Generator,
		mark:        opts.Watermarker,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		timeout:     timeout,
		concurrency: concurrency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateTierJob admits the user, stores the selfie upload once, and creates
// the pending job together with one image row per prompt. The admission and
// the inserts share one transaction: either the tier run is spent and the job
// exists, or neither happened.
func (s *Service) CreateTierJob(ctx context.Context, userID, university, degreeLevel, filename string, selfie []byte) (*domain.GenerationJob, error) {
	if len(selfie) == 0 {
		return nil, fmt.Errorf("%w: empty selfie upload", domain.ErrInputNotFound)
	}

	// Resolve the board before spending anything.
	boardPath, err := s.boards.Path(university, degreeLevel)
	if err != nil {
		return nil, err
	}

	uploadKey := fmt.Sprintf("uploads/%s/%s%s", userID, uuid.NewString(), uploadExt(filename))
	if _, err := s.store.Upload(ctx, uploadKey, selfie); err != nil {
		return nil, fmt.Errorf("store selfie: %w", err)
	}
	// A rejected admission or failed insert must not strand the upload.
	keepUpload := false
	defer func() {
		if keepUpload {
			return
		}
		if err := s.store.Delete(ctx, uploadKey); err != nil {
			s.logger.Warn().Err(err).Str("key", uploadKey).Msg("generation: remove orphaned upload")
		}
	}()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin job transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	admitted, err := s.gate.Admit(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	prompts := s.samplePrompts(admitted == domain.TierPremium)
	ids := make([]string, 0, len(prompts))
	for _, p := range prompts {
		ids = append(ids, p.ID)
	}

	job := &domain.GenerationJob{
		ID:            uuid.NewString(),
		UserID:        userID,
		Tier:          admitted,
		IsWatermarked: admitted == domain.TierFree,
		Status:        domain.JobStatusPending,
		University:    university,
		DegreeLevel:   degreeLevel,
		PromptsUsed:   ids,
		TotalImages:   len(prompts),
	}
	if err := s.jobs.Create(ctx, tx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	rows := make([]domain.GeneratedImage, 0, len(prompts))
	for _, p := range prompts {
		rows = append(rows, domain.GeneratedImage{
			ID:               uuid.NewString(),
			JobID:            job.ID,
			OriginalFilename: filepath.Base(filename),
			InputImagePath:   uploadKey,
			BoardImagePath:   boardPath,
			PromptText:       prompt.Resolve(p.Template, university, degreeLevel),
		})
	}
	if err := s.images.CreateBatch(ctx, tx, rows); err != nil {
		return nil, fmt.Errorf("create image rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit job transaction: %w", err)
	}
	keepUpload = true

	s.metrics.IncAdmission(string(admitted))
	s.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", userID).
		Str("tier", string(admitted)).
		Int("total_images", job.TotalImages).
		Msg("generation: job created")
	return job, nil
}

func (s *Service) samplePrompts(premium bool) []prompt.Prompt {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return prompt.ForTier(s.rng, premium)
}

func uploadExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp":
		return ext
	default:
		return ".png"
	}
}

func mimeForExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
