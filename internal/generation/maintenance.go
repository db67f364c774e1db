package generation

import (
	"context"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/providers/image"
)

// EnqueueRetry validates ownership and queues a single-image retry. The
// actual work happens on the worker.
func (s *Service) EnqueueRetry(ctx context.Context, userID, imageID string) error {
	img, err := s.images.GetForUser(ctx, imageID, userID)
	if err != nil {
		return err
	}
	if err := s.tasks.Enqueue(ctx, domain.TaskTypeRetryImage, img.ID); err != nil {
		return fmt.Errorf("enqueue retry: %w", err)
	}
	s.logger.Info().
		Str("image_id", img.ID).
		Str("user_id", userID).
		Msg("generation: retry queued")
	return nil
}

// ConfirmPremium records the premium purchase and queues the re-render sweep
// that strips watermarks from the user's past output.
func (s *Service) ConfirmPremium(ctx context.Context, userID string) (*domain.User, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin purchase transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := s.gate.MarkPremiumPurchased(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit purchase transaction: %w", err)
	}

	if err := s.tasks.Enqueue(ctx, domain.TaskTypeRerenderSweep, userID); err != nil {
		return nil, fmt.Errorf("enqueue re-render sweep: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Msg("generation: premium confirmed, sweep queued")
	return user, nil
}

// RetryImage re-runs one failed (or stuck) image. The row returns to pending,
// the job reopens to processing, the single unit runs, and the job settles
// again. Running the same retry twice is harmless: the second pass finds no
// pending row and only re-finalizes.
func (s *Service) RetryImage(ctx context.Context, imageID string) error {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return fmt.Errorf("load image: %w", err)
	}
	job, err := s.jobs.GetByID(ctx, img.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status == domain.JobStatusCancelled {
		return fmt.Errorf("%w: job cancelled", domain.ErrInvalidJobTransition)
	}

	if img.Outcome != domain.OutcomePending {
		if err := s.images.Reset(ctx, img.ID); err != nil {
			return fmt.Errorf("reset image: %w", err)
		}
	}
	if job.Status != domain.JobStatusProcessing {
		if !job.Status.CanTransition(domain.JobStatusProcessing) {
			return fmt.Errorf("%w: %s -> processing", domain.ErrInvalidJobTransition, job.Status)
		}
		if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusProcessing, nil); err != nil {
			return fmt.Errorf("reopen job: %w", err)
		}
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("image_id", img.ID).
		Msg("generation: retrying image")
	return s.ProcessJob(ctx, job.ID)
}

// RerenderSweep regenerates the user's watermarked completed output without
// watermarks, then clears the per-job watermark flag. Individual failures are
// logged and skipped; the old watermarked artifact stays in place for them.
func (s *Service) RerenderSweep(ctx context.Context, userID string) error {
	jobs, err := s.jobs.ListWatermarkedCompleted(ctx, userID)
	if err != nil {
		return fmt.Errorf("list watermarked jobs: %w", err)
	}

	for _, job := range jobs {
		if err := s.rerenderJob(ctx, &job); err != nil {
			return err
		}
	}
	s.logger.Info().
		Str("user_id", userID).
		Int("jobs", len(jobs)).
		Msg("generation: re-render sweep finished")
	return nil
}

func (s *Service) rerenderJob(ctx context.Context, job *domain.GenerationJob) error {
	images, err := s.images.ListByJobID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list job images: %w", err)
	}

	var inputsLoaded bool
	var selfie, boardBytes []byte
	for _, img := range images {
		if img.Outcome != domain.OutcomeSucceeded {
			continue
		}
		if !inputsLoaded {
			selfie, boardBytes, err = s.loadInputs(ctx, img)
			if err != nil {
				// The clean artifact from the original run still exists, so
				// the job serves unwatermarked output without a re-render.
				s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generation: sweep inputs unavailable, keeping existing artifacts")
				break
			}
			inputsLoaded = true
		}
		s.rerenderImage(ctx, job, img, selfie, boardBytes)
	}

	if err := s.jobs.ClearWatermarkFlag(ctx, job.ID); err != nil {
		return fmt.Errorf("clear watermark flag: %w", err)
	}
	return nil
}

// rerenderImage regenerates one succeeded image from its frozen prompt and
// swaps both paths to the clean artifact. The success flag never moves; a
// failed regeneration leaves the old artifact being served.
func (s *Service) rerenderImage(ctx context.Context, job *domain.GenerationJob, img domain.GeneratedImage, selfie, boardBytes []byte) {
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	data, err := s.gen.GeneratePortrait(genCtx, image.GenerateRequest{
		Selfie:     selfie,
		SelfieMIME: mimeForExt(img.InputImagePath),
		Board:      boardBytes,
		BoardMIME:  mimeForExt(img.BoardImagePath),
		Prompt:     img.PromptText,
		RequestID:  img.ID,
	})
	s.metrics.ObserveGeneratorCall(time.Since(start))
	if err != nil {
		s.logger.Warn().Err(err).Str("image_id", img.ID).Msg("generation: sweep re-render failed, keeping old artifact")
		return
	}

	rawKey := fmt.Sprintf("results/%s/%s.png", job.ID, img.ID)
	if _, err := s.store.Upload(ctx, rawKey, data); err != nil {
		s.logger.Warn().Err(err).Str("image_id", img.ID).Msg("generation: sweep artifact store failed")
		return
	}
	if err := s.images.MarkSucceeded(ctx, img.ID, rawKey, rawKey); err != nil {
		s.logger.Error().Err(err).Str("image_id", img.ID).Msg("generation: sweep path update failed")
		return
	}
	s.metrics.IncRerender()
}

// HandleTask dispatches one claimed pipeline task.
func (s *Service) HandleTask(ctx context.Context, task *domain.PipelineTask) error {
	switch task.TaskType {
	case domain.TaskTypeRetryImage:
		return s.RetryImage(ctx, task.RefID)
	case domain.TaskTypeRerenderSweep:
		return s.RerenderSweep(ctx, task.RefID)
	default:
		return fmt.Errorf("unknown task type %q", task.TaskType)
	}
}
