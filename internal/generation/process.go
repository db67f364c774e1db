package generation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"server/internal/board"
	"server/internal/domain"
	"server/internal/providers/image"
	"server/internal/watermark"
)

const (
	partialFailureMessage = "%d images failed"
	allFailedMessage      = "All images failed to generate"
)

// ProcessJob runs every pending image unit of the job and finalizes it. The
// worker calls this after claiming a job; retries re-enter through the same
// unit path, so the whole function is safe to run more than once.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status == domain.JobStatusCancelled {
		return nil
	}
	if job.Status != domain.JobStatusProcessing {
		if !job.Status.CanTransition(domain.JobStatusProcessing) {
			return fmt.Errorf("%w: %s -> processing", domain.ErrInvalidJobTransition, job.Status)
		}
		if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusProcessing, nil); err != nil {
			return fmt.Errorf("mark job processing: %w", err)
		}
	}

	images, err := s.images.ListByJobID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list job images: %w", err)
	}

	pending := make([]domain.GeneratedImage, 0, len(images))
	for _, img := range images {
		if img.Outcome == domain.OutcomePending {
			pending = append(pending, img)
		}
	}
	if len(pending) > 0 {
		selfie, boardBytes, err := s.loadInputs(ctx, pending[0])
		if err != nil {
			// Inputs are shared by every unit; without them the whole
			// remainder of the job fails.
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("generation: inputs unavailable")
			for _, img := range pending {
				s.failImage(ctx, img.ID, job.ID, err)
			}
		} else {
			group, groupCtx := errgroup.WithContext(ctx)
			group.SetLimit(s.concurrency)
			for _, img := range pending {
				img := img
				group.Go(func() error {
					s.runUnit(groupCtx, job, img, selfie, boardBytes)
					return nil
				})
			}
			_ = group.Wait()
		}
	}

	return s.finalize(ctx, job.ID)
}

// loadInputs fetches the selfie and board bytes recorded on the image row.
// Every row of a job shares the same pair, so they are fetched once.
func (s *Service) loadInputs(ctx context.Context, img domain.GeneratedImage) (selfie, boardBytes []byte, err error) {
	selfie, err = s.store.Download(ctx, img.InputImagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: selfie %s: %s", domain.ErrInputNotFound, img.InputImagePath, err)
	}
	boardBytes, err = board.ReadPath(img.BoardImagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("load board %s: %w", img.BoardImagePath, err)
	}
	return selfie, boardBytes, nil
}

// runUnit executes one per-image unit of work. Unit failures are recorded on
// the image row and never abort sibling units.
func (s *Service) runUnit(ctx context.Context, job *domain.GenerationJob, img domain.GeneratedImage, selfie, boardBytes []byte) {
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
		s.failImage(ctx, img.ID, job.ID, err)
		return
	}

	// The clean artifact is always kept; premium upgrades swap the display
	// path over to it without regenerating.
	rawKey := fmt.Sprintf("results/%s/%s.png", job.ID, img.ID)
	if _, err := s.store.Upload(ctx, rawKey, data); err != nil {
		s.failImage(ctx, img.ID, job.ID, fmt.Errorf("store artifact: %w", err))
		return
	}

	displayKey := rawKey
	if job.IsWatermarked {
		marked := s.mark.Apply(data, watermark.PositionDiagonal)
		displayKey = fmt.Sprintf("results/%s/%s_display.png", job.ID, img.ID)
		if _, err := s.store.Upload(ctx, displayKey, marked); err != nil {
			s.failImage(ctx, img.ID, job.ID, fmt.Errorf("store display artifact: %w", err))
			return
		}
	}

	if err := s.images.MarkSucceeded(ctx, img.ID, displayKey, rawKey); err != nil {
		s.logger.Error().Err(err).Str("image_id", img.ID).Msg("generation: record success")
		return
	}
	s.syncProgress(ctx, job.ID)
	s.metrics.IncImageOutcome(domain.OutcomeSucceeded.String())
	s.logger.Info().
		Str("job_id", job.ID).
		Str("image_id", img.ID).
		Dur("took", time.Since(start)).
		Msg("generation: image succeeded")
}

func (s *Service) failImage(ctx context.Context, imageID, jobID string, cause error) {
	if err := s.images.MarkFailed(ctx, imageID, cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("image_id", imageID).Msg("generation: record failure")
		return
	}
	s.syncProgress(ctx, jobID)
	s.metrics.IncImageOutcome(domain.OutcomeFailed.String())
	s.logger.Warn().
		Err(cause).
		Str("job_id", jobID).
		Str("image_id", imageID).
		Msg("generation: image failed")
}

// syncProgress refreshes the job counters right after an image row settles,
// so a status poll sees progress while sibling units are still running.
func (s *Service) syncProgress(ctx context.Context, jobID string) {
	if _, err := s.jobs.SyncCounters(ctx, jobID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("generation: sync counters")
	}
}

// finalize recomputes the job counters and settles its terminal status once
// every image has an outcome. Counters are derived from the image rows, so
// duplicate deliveries of the same job converge instead of double-counting.
func (s *Service) finalize(ctx context.Context, jobID string) error {
	job, err := s.jobs.SyncCounters(ctx, jobID)
	if err != nil {
		return fmt.Errorf("sync job counters: %w", err)
	}
	if job.Attempted() < job.TotalImages {
		return nil
	}

	status := domain.JobStatusCompleted
	msg := ""
	switch {
	case job.FailedImages == 0:
	case job.CompletedImages > 0:
		msg = fmt.Sprintf(partialFailureMessage, job.FailedImages)
	default:
		status = domain.JobStatusFailed
		msg = allFailedMessage
	}

	if job.Status == status {
		return nil
	}
	if !job.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidJobTransition, job.Status, status)
	}
	// Passing the message unconditionally clears a stale failure note after
	// a successful retry.
	if err := s.jobs.UpdateStatus(ctx, job.ID, status, &msg); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Int("completed", job.CompletedImages).
		Int("failed", job.FailedImages).
		Msg("generation: job finalized")
	return nil
}
