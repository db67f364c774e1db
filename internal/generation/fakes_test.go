package generation

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"server/internal/board"
	"server/internal/domain"
	"server/internal/providers/image"
	"server/internal/tier"
	"server/internal/watermark"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type fakeDB struct{}

func (fakeDB) Begin(ctx context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUsers(users ...*domain.User) *memUsers {
	m := &memUsers{users: map[string]*domain.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.User, error) {
	return m.GetByID(ctx, id)
}

func (m *memUsers) UpdateTierCounters(ctx context.Context, tx pgx.Tx, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

type memImages struct {
	mu     sync.Mutex
	order  []string
	images map[string]*domain.GeneratedImage
}

func newMemImages() *memImages {
	return &memImages{images: map[string]*domain.GeneratedImage{}}
}

func (m *memImages) CreateBatch(ctx context.Context, tx pgx.Tx, images []domain.GeneratedImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, img := range images {
		copied := img
		m.images[img.ID] = &copied
		m.order = append(m.order, img.ID)
	}
	return nil
}

func (m *memImages) GetByID(ctx context.Context, imageID string) (*domain.GeneratedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[imageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *img
	return &copied, nil
}

func (m *memImages) GetForUser(ctx context.Context, imageID, userID string) (*domain.GeneratedImage, error) {
	return m.GetByID(ctx, imageID)
}

func (m *memImages) ListByJobID(ctx context.Context, jobID string) ([]domain.GeneratedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GeneratedImage
	for _, id := range m.order {
		if img := m.images[id]; img.JobID == jobID {
			out = append(out, *img)
		}
	}
	return out, nil
}

func (m *memImages) MarkSucceeded(ctx context.Context, imageID, outputPath, unwatermarkedPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[imageID]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	img.Outcome = domain.OutcomeSucceeded
	img.OutputImagePath = outputPath
	img.OutputImagePathUnwatermarked = unwatermarkedPath
	img.ErrorMessage = ""
	img.ProcessedAt = &now
	return nil
}

func (m *memImages) MarkFailed(ctx context.Context, imageID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[imageID]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	img.Outcome = domain.OutcomeFailed
	img.ErrorMessage = errMsg
	img.ProcessedAt = &now
	return nil
}

func (m *memImages) Reset(ctx context.Context, imageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[imageID]
	if !ok {
		return domain.ErrNotFound
	}
	img.Outcome = domain.OutcomePending
	img.OutputImagePath = ""
	img.OutputImagePathUnwatermarked = ""
	img.ErrorMessage = ""
	img.ProcessedAt = nil
	return nil
}

type memJobs struct {
	mu     sync.Mutex
	order  []string
	jobs   map[string]*domain.GenerationJob
	images *memImages
}

func newMemJobs(images *memImages) *memJobs {
	return &memJobs{jobs: map[string]*domain.GenerationJob{}, images: images}
}

func (m *memJobs) Create(ctx context.Context, tx pgx.Tx, job *domain.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	copied.CreatedAt = time.Now()
	m.jobs[job.ID] = &copied
	m.order = append(m.order, job.ID)
	return nil
}

func (m *memJobs) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memJobs) GetForUser(ctx context.Context, jobID, userID string) (*domain.GenerationJob, error) {
	job, err := m.GetByID(ctx, jobID)
	if err != nil || job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (m *memJobs) ListForUser(ctx context.Context, userID string, limit int) ([]domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GenerationJob
	for _, id := range m.order {
		if job := m.jobs[id]; job.UserID == userID {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memJobs) ListWatermarkedCompleted(ctx context.Context, userID string) ([]domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GenerationJob
	for _, id := range m.order {
		job := m.jobs[id]
		if job.UserID == userID && job.Status == domain.JobStatusCompleted && job.IsWatermarked {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memJobs) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	if status.Terminal() {
		now := time.Now()
		job.CompletedAt = &now
	} else {
		job.CompletedAt = nil
	}
	return nil
}

func (m *memJobs) ClearWatermarkFlag(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.IsWatermarked = false
	return nil
}

func (m *memJobs) ClaimPending(ctx context.Context) (*domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if job := m.jobs[id]; job.Status == domain.JobStatusPending {
			job.Status = domain.JobStatusProcessing
			copied := *job
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memJobs) SyncCounters(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	images, _ := m.images.ListByJobID(ctx, jobID)
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	job.CompletedImages, job.FailedImages = 0, 0
	for _, img := range images {
		switch img.Outcome {
		case domain.OutcomeSucceeded:
			job.CompletedImages++
		case domain.OutcomeFailed:
			job.FailedImages++
		}
	}
	copied := *job
	return &copied, nil
}

type memTasks struct {
	mu    sync.Mutex
	tasks []domain.PipelineTask
}

func (m *memTasks) Enqueue(ctx context.Context, taskType, refID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, domain.PipelineTask{
		ID:       fmt.Sprintf("task-%d", len(m.tasks)+1),
		TaskType: taskType,
		RefID:    refID,
	})
	return nil
}

func (m *memTasks) Claim(ctx context.Context) (*domain.PipelineTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return nil, domain.ErrNotFound
	}
	task := m.tasks[0]
	m.tasks = m.tasks[1:]
	return &task, nil
}

func (m *memTasks) Complete(ctx context.Context, taskID string) error { return nil }

func (m *memTasks) Fail(ctx context.Context, taskID string, errMsg string) error { return nil }

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return "", fmt.Errorf("store unavailable")
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	m.objects[key] = copied
	return key, nil
}

func (m *memStore) Download(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) PublicURL(key string) string { return "/static/" + key }

func (m *memStore) objectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, req image.GenerateRequest) ([]byte, error)
}

func (g *fakeGenerator) GeneratePortrait(ctx context.Context, req image.GenerateRequest) ([]byte, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	fn := g.fn
	g.mu.Unlock()
	if fn != nil {
		return fn(call, req)
	}
	return []byte("portrait:" + req.RequestID), nil
}

type testEnv struct {
	svc    *Service
	users  *memUsers
	jobs   *memJobs
	images *memImages
	tasks  *memTasks
	store  *memStore
	gen    *fakeGenerator
}

func newTestEnv(t *testing.T, users ...*domain.User) *testEnv {
	t.Helper()
	boardRoot := t.TempDir()
	boardDir := filepath.Join(boardRoot, "Test University", "Bachelor")
	if err := os.MkdirAll(boardDir, 0o755); err != nil {
		t.Fatalf("mkdir board dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(boardDir, "board.png"), []byte("board-bytes"), 0o644); err != nil {
		t.Fatalf("write board: %v", err)
	}
	catalog, err := board.NewCatalog(boardRoot)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	if len(users) == 0 {
		users = []*domain.User{{ID: "u1"}}
	}
	memU := newMemUsers(users...)
	imgs := newMemImages()
	jobs := newMemJobs(imgs)
	tasks := &memTasks{}
	store := newMemStore()
	gen := &fakeGenerator{}
	logger := zerolog.New(io.Discard)

	svc := NewService(Options{
		DB:                fakeDB{},
		Gate:              tier.NewGate(memU),
		Jobs:              jobs,
		Images:            imgs,
		Tasks:             tasks,
		Store:             store,
		Boards:            catalog,
		Generator:         gen,
		Watermarker:       watermark.NewCompositor(logger),
		Logger:            logger,
		GenerationTimeout: 5 * time.Second,
		Concurrency:       2,
	})
	return &testEnv{svc: svc, users: memU, jobs: jobs, images: imgs, tasks: tasks, store: store, gen: gen}
}
