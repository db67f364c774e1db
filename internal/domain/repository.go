package domain

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// UserRepository defines access methods for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetForUpdate locks the user row inside tx so tier admission is
	// exactly-once under concurrent requests.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*User, error)
	UpdateTierCounters(ctx context.Context, tx pgx.Tx, user *User) error
}

// JobRepository defines persistence for generation jobs.
type JobRepository interface {
	Create(ctx context.Context, tx pgx.Tx, job *GenerationJob) error
	GetByID(ctx context.Context, jobID string) (*GenerationJob, error)
	GetForUser(ctx context.Context, jobID, userID string) (*GenerationJob, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]GenerationJob, error)
	// ListWatermarkedCompleted feeds the premium re-render sweep.
	ListWatermarkedCompleted(ctx context.Context, userID string) ([]GenerationJob, error)
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errMsg *string) error
	ClearWatermarkFlag(ctx context.Context, jobID string) error
	// ClaimPending atomically moves the oldest pending job to processing
	// and returns it, or ErrNotFound when the queue is empty.
	ClaimPending(ctx context.Context) (*GenerationJob, error)
	// SyncCounters recomputes completed/failed counts from the image rows
	// and returns the fresh job. Deriving counts keeps duplicate task
	// delivery from double-counting.
	SyncCounters(ctx context.Context, jobID string) (*GenerationJob, error)
}

// ImageRepository handles persistence for per-prompt image rows.
type ImageRepository interface {
	CreateBatch(ctx context.Context, tx pgx.Tx, images []GeneratedImage) error
	GetByID(ctx context.Context, imageID string) (*GeneratedImage, error)
	GetForUser(ctx context.Context, imageID, userID string) (*GeneratedImage, error)
	ListByJobID(ctx context.Context, jobID string) ([]GeneratedImage, error)
	MarkSucceeded(ctx context.Context, imageID, outputPath, unwatermarkedPath string) error
	MarkFailed(ctx context.Context, imageID, errMsg string) error
	// Reset returns an image row to the pending state ahead of a retry.
	Reset(ctx context.Context, imageID string) error
}

// TaskRepository is the durable queue for retry and sweep work. Delivery is
// at-least-once; handlers must be idempotent.
type TaskRepository interface {
	Enqueue(ctx context.Context, taskType, refID string) error
	Claim(ctx context.Context) (*PipelineTask, error)
	Complete(ctx context.Context, taskID string) error
	Fail(ctx context.Context, taskID string, errMsg string) error
}

// PipelineTask is one queued unit of asynchronous pipeline work.
type PipelineTask struct {
	ID       string
	TaskType string
	RefID    string
}

const (
	TaskTypeRetryImage    = "IMAGE_RETRY"
	TaskTypeRerenderSweep = "RERENDER_SWEEP"
)
