package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

const imageColumns = `id, job_id, original_filename, input_image_path, board_image_path, prompt_text, output_image_path, output_image_path_unwatermarked, success, error_message, created_at, processed_at`

// ImageRepositoryPG implements domain.ImageRepository.
type ImageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewImageRepository creates a new image repository backed by PostgreSQL.
func NewImageRepository(pool *pgxpool.Pool) *ImageRepositoryPG {
	return &ImageRepositoryPG{pool: pool}
}

// CreateBatch inserts one row per prompt inside tx. Rows start with success
// NULL, the pending state.
func (r *ImageRepositoryPG) CreateBatch(ctx context.Context, tx pgx.Tx, images []domain.GeneratedImage) error {
	query := `
INSERT INTO generated_images (id, job_id, original_filename, input_image_path, board_image_path, prompt_text)
VALUES ($1, $2, $3, $4, $5, $6);
`
	batch := &pgx.Batch{}
	for _, img := range images {
		batch.Queue(query,
			img.ID,
			img.JobID,
			img.OriginalFilename,
			img.InputImagePath,
			img.BoardImagePath,
			img.PromptText,
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// GetByID fetches an image row by its identifier.
func (r *ImageRepositoryPG) GetByID(ctx context.Context, imageID string) (*domain.GeneratedImage, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+imageColumns+` FROM generated_images WHERE id = $1`, imageID)
	return scanImage(row)
}

// GetForUser fetches an image only when its job belongs to userID.
func (r *ImageRepositoryPG) GetForUser(ctx context.Context, imageID, userID string) (*domain.GeneratedImage, error) {
	query := `
SELECT i.id, i.job_id, i.original_filename, i.input_image_path, i.board_image_path, i.prompt_text, i.output_image_path, i.output_image_path_unwatermarked, i.success, i.error_message, i.created_at, i.processed_at
FROM generated_images i
JOIN generation_jobs j ON j.id = i.job_id
WHERE i.id = $1 AND j.user_id = $2;
`
	row := r.pool.QueryRow(ctx, query, imageID, userID)
	return scanImage(row)
}

// ListByJobID returns the job's image rows in creation order.
func (r *ImageRepositoryPG) ListByJobID(ctx context.Context, jobID string) ([]domain.GeneratedImage, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+imageColumns+` FROM generated_images WHERE job_id = $1 ORDER BY created_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []domain.GeneratedImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	return images, rows.Err()
}

// MarkSucceeded records a successful attempt with both output paths.
func (r *ImageRepositoryPG) MarkSucceeded(ctx context.Context, imageID, outputPath, unwatermarkedPath string) error {
	query := `
UPDATE generated_images
SET success = TRUE,
    output_image_path = $2,
    output_image_path_unwatermarked = $3,
    error_message = '',
    processed_at = NOW()
WHERE id = $1;
`
	return r.exec(ctx, query, imageID, outputPath, unwatermarkedPath)
}

// MarkFailed records a failed attempt with its reason.
func (r *ImageRepositoryPG) MarkFailed(ctx context.Context, imageID, errMsg string) error {
	query := `
UPDATE generated_images
SET success = FALSE,
    error_message = $2,
    processed_at = NOW()
WHERE id = $1;
`
	return r.exec(ctx, query, imageID, errMsg)
}

// Reset returns the row to the pending state ahead of a retry attempt.
func (r *ImageRepositoryPG) Reset(ctx context.Context, imageID string) error {
	query := `
UPDATE generated_images
SET success = NULL,
    output_image_path = '',
    output_image_path_unwatermarked = '',
    error_message = '',
    processed_at = NULL
WHERE id = $1;
`
	return r.exec(ctx, query, imageID)
}

func (r *ImageRepositoryPG) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanImage(row pgx.Row) (*domain.GeneratedImage, error) {
	var (
		img     domain.GeneratedImage
		success *bool
	)
	err := row.Scan(
		&img.ID,
		&img.JobID,
		&img.OriginalFilename,
		&img.InputImagePath,
		&img.BoardImagePath,
		&img.PromptText,
		&img.OutputImagePath,
		&img.OutputImagePathUnwatermarked,
		&success,
		&img.ErrorMessage,
		&img.CreatedAt,
		&img.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	img.Outcome = domain.OutcomeFromNullableBool(success)
	return &img, nil
}
