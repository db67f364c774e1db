package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// TaskRepositoryPG implements domain.TaskRepository on a plain table queue.
// Claiming uses SKIP LOCKED, the same discipline as the job queue.
type TaskRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new task repository backed by PostgreSQL.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepositoryPG {
	return &TaskRepositoryPG{pool: pool}
}

// Enqueue inserts a queued task of taskType referencing refID.
func (r *TaskRepositoryPG) Enqueue(ctx context.Context, taskType, refID string) error {
	query := `
INSERT INTO pipeline_tasks (id, task_type, ref_id, status)
VALUES ($1, $2, $3, 'queued');
`
	_, err := r.pool.Exec(ctx, query, uuid.NewString(), taskType, refID)
	return err
}

// Claim atomically moves the oldest queued task to running and returns it, or
// ErrNotFound when the queue is empty.
func (r *TaskRepositoryPG) Claim(ctx context.Context) (*domain.PipelineTask, error) {
	query := `
UPDATE pipeline_tasks
SET status = 'running',
    updated_at = NOW()
WHERE id = (
    SELECT id FROM pipeline_tasks
    WHERE status = 'queued'
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
RETURNING id, task_type, ref_id;
`
	var task domain.PipelineTask
	err := r.pool.QueryRow(ctx, query).Scan(&task.ID, &task.TaskType, &task.RefID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// Complete marks the task done.
func (r *TaskRepositoryPG) Complete(ctx context.Context, taskID string) error {
	return r.finish(ctx, taskID, "done", "")
}

// Fail marks the task failed with its reason. Failed tasks stay in the table
// for inspection; nothing requeues them automatically.
func (r *TaskRepositoryPG) Fail(ctx context.Context, taskID string, errMsg string) error {
	return r.finish(ctx, taskID, "failed", errMsg)
}

func (r *TaskRepositoryPG) finish(ctx context.Context, taskID, status, errMsg string) error {
	query := `
UPDATE pipeline_tasks
SET status = $2,
    error_message = $3,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, taskID, status, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
