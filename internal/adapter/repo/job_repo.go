package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

const jobColumns = `id, user_id, tier, is_watermarked, status, university, degree_level, prompts_used, total_images, completed_images, failed_images, error_message, created_at, updated_at, completed_at`

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record inside tx so the job and its image rows
// commit together.
func (r *JobRepositoryPG) Create(ctx context.Context, tx pgx.Tx, job *domain.GenerationJob) error {
	query := `
INSERT INTO generation_jobs (id, user_id, tier, is_watermarked, status, university, degree_level, prompts_used, total_images, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := tx.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Tier,
		job.IsWatermarked,
		job.Status,
		job.University,
		job.DegreeLevel,
		domain.JoinPromptIDs(job.PromptsUsed),
		job.TotalImages,
		job.ErrorMessage,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

// GetForUser fetches a job only when it belongs to userID. Other users' jobs
// surface as not-found rather than forbidden.
func (r *JobRepositoryPG) GetForUser(ctx context.Context, jobID, userID string) (*domain.GenerationJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1 AND user_id = $2`, jobID, userID)
	return scanJob(row)
}

// ListForUser returns the user's jobs, newest first.
func (r *JobRepositoryPG) ListForUser(ctx context.Context, userID string, limit int) ([]domain.GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListWatermarkedCompleted returns the user's completed watermarked jobs,
// oldest first so the re-render sweep replays them in creation order.
func (r *JobRepositoryPG) ListWatermarkedCompleted(ctx context.Context, userID string) ([]domain.GenerationJob, error) {
	query := `
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE user_id = $1
  AND status = $2
  AND is_watermarked = TRUE
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, query, userID, domain.JobStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// UpdateStatus moves the job to status, recording completed_at on terminal
// states and clearing it when a retry reopens the job.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string) error {
	query := `
UPDATE generation_jobs
SET status = $2,
    error_message = COALESCE($3, error_message),
    completed_at = CASE WHEN $4 THEN NOW() ELSE NULL END,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, jobID, status, errMsg, status.Terminal())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClearWatermarkFlag marks the job as serving unwatermarked output.
func (r *JobRepositoryPG) ClearWatermarkFlag(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE generation_jobs SET is_watermarked = FALSE, updated_at = NOW() WHERE id = $1`, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClaimPending atomically claims the oldest pending job. SKIP LOCKED lets
// several workers poll the same table without fighting over rows.
func (r *JobRepositoryPG) ClaimPending(ctx context.Context) (*domain.GenerationJob, error) {
	query := `
UPDATE generation_jobs
SET status = $1,
    updated_at = NOW()
WHERE id = (
    SELECT id FROM generation_jobs
    WHERE status = $2
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
RETURNING ` + jobColumns + `;
`
	row := r.pool.QueryRow(ctx, query, domain.JobStatusProcessing, domain.JobStatusPending)
	return scanJob(row)
}

// SyncCounters recomputes the per-job image counters from the image rows and
// returns the refreshed job.
func (r *JobRepositoryPG) SyncCounters(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	query := `
UPDATE generation_jobs j
SET completed_images = c.completed,
    failed_images = c.failed,
    updated_at = NOW()
FROM (
    SELECT count(*) FILTER (WHERE success IS TRUE) AS completed,
           count(*) FILTER (WHERE success IS FALSE) AS failed
    FROM generated_images
    WHERE job_id = $1
) c
WHERE j.id = $1
RETURNING ` + jobColumns + `;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	return scanJob(row)
}

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var (
		j       domain.GenerationJob
		prompts string
	)
	err := row.Scan(
		&j.ID,
		&j.UserID,
		&j.Tier,
		&j.IsWatermarked,
		&j.Status,
		&j.University,
		&j.DegreeLevel,
		&prompts,
		&j.TotalImages,
		&j.CompletedImages,
		&j.FailedImages,
		&j.ErrorMessage,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	j.PromptsUsed = domain.SplitPromptIDs(prompts)
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]domain.GenerationJob, error) {
	var jobs []domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
