package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	errs "github.com/bookwise/payment-service/internal/domain/errors"
	"github.com/bookwise/payment-service/internal/domain/model"
	"github.com/bookwise/payment-service/internal/usecase"
)

type stubTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*model.RetryTask
}

func newStubTaskRepo() *stubTaskRepo {
	return &stubTaskRepo{tasks: make(map[string]*model.RetryTask)}
}

func (r *stubTaskRepo) Create(_ context.Context, task *model.RetryTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *stubTaskRepo) GetByID(_ context.Context, id string) (*model.RetryTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, errs.ErrTaskNotFound
	}
	cp := *task
	return &cp, nil
}

func (r *stubTaskRepo) GetDue(_ context.Context, now time.Time, limit int) ([]*model.RetryTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*model.RetryTask
	for _, task := range r.tasks {
		if task.Status == model.RetryStatusPending && !task.NextAttemptAt.After(now) {
			cp := *task
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (r *stubTaskRepo) Claim(_ context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.Status != model.RetryStatusPending {
		return false, nil
	}
	task.Status = model.RetryStatusInProgress
	task.StartedAt = &now
	return true, nil
}

func (r *stubTaskRepo) MarkSucceeded(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok := r.tasks[id]; ok {
		task.Status = model.RetryStatusSucceeded
		task.CompletedAt = &now
	}
	return nil
}

func (r *stubTaskRepo) Reschedule(_ context.Context, id string, retryCount int, nextAttemptAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok := r.tasks[id]; ok {
		task.Status = model.RetryStatusPending
		task.RetryCount = retryCount
		task.NextAttemptAt = nextAttemptAt
		task.LastError = &lastError
	}
	return nil
}

func (r *stubTaskRepo) MarkFailed(_ context.Context, id string, retryCount int, now time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok := r.tasks[id]; ok {
		task.Status = model.RetryStatusFailed
		task.RetryCount = retryCount
		task.CompletedAt = &now
		task.LastError = &lastError
	}
	return nil
}

func (r *stubTaskRepo) ReclaimStale(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var reclaimed int64
	for _, task := range r.tasks {
		if task.Status == model.RetryStatusInProgress && task.StartedAt != nil && task.StartedAt.Before(cutoff) {
			task.Status = model.RetryStatusPending
			task.StartedAt = nil
			reclaimed++
		}
	}
	return reclaimed, nil
}

func TestRetryWorker_DrainsQueueUntilCancelled(t *testing.T) {
	logger := zap.NewNop()
	repo := newStubTaskRepo()
	queue := usecase.NewRetryQueue(repo, nil, logger, usecase.DefaultRetryPolicy())

	var processed atomic.Int32
	queue.RegisterHandler("email.send", func(ctx context.Context, payload model.JSONB) error {
		processed.Add(1)
		return nil
	})

	taskID, err := queue.Enqueue(context.Background(), "tx-1", "email.send", model.JSONB{}, nil)
	assert.NoError(t, err)

	w := NewRetryWorker(queue, nil, logger, RetryWorkerConfig{
		PollInterval:  10 * time.Millisecond,
		SweepInterval: 25 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}

	assert.Equal(t, int32(1), processed.Load())
	task, err := repo.GetByID(context.Background(), taskID)
	assert.NoError(t, err)
	assert.Equal(t, model.RetryStatusSucceeded, task.Status)
}

func TestNewRetryWorker_AppliesDefaults(t *testing.T) {
	queue := usecase.NewRetryQueue(newStubTaskRepo(), nil, zap.NewNop(), usecase.DefaultRetryPolicy())
	w := NewRetryWorker(queue, nil, zap.NewNop(), RetryWorkerConfig{})

	assert.Equal(t, 5*time.Second, w.pollInterval)
	assert.Equal(t, time.Minute, w.sweepInterval)
	assert.Equal(t, 5*time.Minute, w.staleThreshold)
	assert.Equal(t, 24*time.Hour, w.deliveryRetention)
}
