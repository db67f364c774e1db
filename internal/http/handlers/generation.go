package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/tier"
	"server/pkg/zip"
)

type jobResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	Tier          string `json:"tier"`
	IsWatermarked bool   `json:"is_watermarked"`
	TotalImages   int    `json:"total_images"`
}

type jobStatusResponse struct {
	JobID           string  `json:"job_id"`
	Status          string  `json:"status"`
	Progress        float64 `json:"progress"`
	TotalImages     int     `json:"total_images"`
	CompletedImages int     `json:"completed_images"`
	FailedImages    int     `json:"failed_images"`
	Message         string  `json:"message,omitempty"`
}

type imageDTO struct {
	ID          string `json:"id"`
	Outcome     string `json:"outcome"`
	URL         string `json:"url,omitempty"`
	Error       string `json:"error,omitempty"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

// GenerationCreate accepts the multipart generation request and creates a
// tier-admitted job.
func (a *App) GenerationCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	if err := r.ParseMultipartForm(a.maxUpload()); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	university := r.FormValue("university")
	degreeLevel := r.FormValue("degree_level")
	if university == "" || degreeLevel == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "university and degree_level required")
		return
	}

	file, header, err := r.FormFile("selfie")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "selfie file required")
		return
	}
	defer file.Close()
	selfie, err := io.ReadAll(io.LimitReader(file, a.maxUpload()))
	if err != nil || len(selfie) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable selfie upload")
		return
	}

	job, err := a.Service.CreateTierJob(r.Context(), userID, university, degreeLevel, header.Filename, selfie)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentRequired):
			a.error(w, http.StatusPaymentRequired, "payment_required", "purchase premium to generate more portraits")
		case errors.Is(err, domain.ErrPremiumExhausted):
			a.error(w, http.StatusForbidden, "premium_exhausted", "all premium generations have been used")
		case errors.Is(err, domain.ErrBoardNotFound):
			a.error(w, http.StatusNotFound, "board_not_found", "no design board for that university and degree level")
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "user not found")
		default:
			a.Logger.Error().Err(err).Str("user_id", userID).Msg("generation create failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to create generation job")
		}
		return
	}

	a.json(w, http.StatusAccepted, jobResponse{
		JobID:         job.ID,
		Status:        string(job.Status),
		Tier:          string(job.Tier),
		IsWatermarked: job.IsWatermarked,
		TotalImages:   job.TotalImages,
	})
}

// JobsList returns the caller's jobs, newest first.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobs, err := a.Jobs.ListForUser(r.Context(), userID, 50)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	out := make([]jobStatusResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobStatus(&job))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": out})
}

// JobGet returns one job with its image rows.
func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.Jobs.GetForUser(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	images, err := a.Images.ListByJobID(r.Context(), job.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("list job images failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job images")
		return
	}

	dtos := make([]imageDTO, 0, len(images))
	for _, img := range images {
		dto := imageDTO{ID: img.ID, Outcome: img.Outcome.String(), Error: img.ErrorMessage}
		if img.Outcome == domain.OutcomeSucceeded {
			dto.URL = fmt.Sprintf("/v1/generation/results/%s", img.ID)
		}
		if img.ProcessedAt != nil {
			dto.ProcessedAt = img.ProcessedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		dtos = append(dtos, dto)
	}
	a.json(w, http.StatusOK, map[string]any{
		"job":    jobStatus(job),
		"tier":   job.Tier,
		"images": dtos,
	})
}

// JobStatus is the lightweight progress poll.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.Jobs.GetForUser(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, jobStatus(job))
}

// TierStatus reports the caller's entitlement.
func (a *App) TierStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	a.json(w, http.StatusOK, tier.StatusFor(user))
}

// ImageRetry queues a retry for one image.
func (a *App) ImageRetry(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	imageID := chi.URLParam(r, "id")
	if err := a.Service.EnqueueRetry(r.Context(), userID, imageID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "image not found")
			return
		}
		a.Logger.Error().Err(err).Str("image_id", imageID).Msg("retry enqueue failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue retry")
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"status": "queued", "image_id": imageID})
}

// ResultDownload streams one generated artifact. Premium purchasers always
// receive the clean variant, even for jobs rendered while they were free.
func (a *App) ResultDownload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	img, err := a.Images.GetForUser(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	if img.Outcome != domain.OutcomeSucceeded {
		a.error(w, http.StatusConflict, "not_ready", "image has no artifact")
		return
	}

	key := img.OutputImagePath
	if user, err := a.Users.GetByID(r.Context(), userID); err == nil &&
		user.HasPurchasedPremium && img.OutputImagePathUnwatermarked != "" {
		key = img.OutputImagePathUnwatermarked
	}

	data, err := a.Store.Download(r.Context(), key)
	if err != nil {
		a.Logger.Error().Err(err).Str("key", key).Msg("artifact download failed")
		a.error(w, http.StatusNotFound, "not_found", "artifact missing from storage")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(key)))
	_, _ = w.Write(data)
}

// JobDownload streams a zip with every successful artifact of the job.
func (a *App) JobDownload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.Jobs.GetForUser(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	images, err := a.Images.ListByJobID(r.Context(), job.ID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job images")
		return
	}

	premium := false
	if user, err := a.Users.GetByID(r.Context(), userID); err == nil {
		premium = user.HasPurchasedPremium
	}

	var assets []zip.Asset
	for i, img := range images {
		if img.Outcome != domain.OutcomeSucceeded {
			continue
		}
		key := img.OutputImagePath
		if premium && img.OutputImagePathUnwatermarked != "" {
			key = img.OutputImagePathUnwatermarked
		}
		data, err := a.Store.Download(r.Context(), key)
		if err != nil {
			a.Logger.Warn().Err(err).Str("key", key).Msg("skipping missing artifact in archive")
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("portrait_%02d.png", i+1),
			MIME:     "image/png",
			Data:     data,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusConflict, "not_ready", "job has no downloadable artifacts")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "portraits_"+job.ID+".zip"))
	_, _ = w.Write(zip.ArchiveAssets(assets))
}

// Universities lists universities with at least one design board.
func (a *App) Universities(w http.ResponseWriter, r *http.Request) {
	universities, err := a.Boards.List()
	if err != nil {
		a.Logger.Error().Err(err).Msg("list universities failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list universities")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"universities": universities})
}

// PremiumConfirmed is the internal hook standing in for the payment webhook:
// it records the purchase and queues the re-render sweep.
func (a *App) PremiumConfirmed(w http.ResponseWriter, r *http.Request) {
	if !a.isSuperuser(r) {
		a.error(w, http.StatusForbidden, "forbidden", "superuser required")
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id required")
		return
	}

	user, err := a.Service.ConfirmPremium(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", req.UserID).Msg("premium confirm failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to confirm premium")
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"status":                "sweep_queued",
		"user_id":               user.ID,
		"has_purchased_premium": user.HasPurchasedPremium,
	})
}

func jobStatus(job *domain.GenerationJob) jobStatusResponse {
	resp := jobStatusResponse{
		JobID:           job.ID,
		Status:          string(job.Status),
		Progress:        job.Progress(),
		TotalImages:     job.TotalImages,
		CompletedImages: job.CompletedImages,
		FailedImages:    job.FailedImages,
	}
	// The poll message is reserved for whole-job failure; partial failures
	// surface through the failed_images counter instead.
	if job.Status == domain.JobStatusFailed && job.ErrorMessage != "" {
		resp.Message = job.ErrorMessage
	}
	return resp
}
