package repository

import (
	"context"
	"time"

	"github.com/bookwise/payment-service/internal/domain/model"
)

// RetryTaskRepository is the durable store boundary for retry tasks.
type RetryTaskRepository interface {
	Create(ctx context.Context, task *model.RetryTask) error
	GetByID(ctx context.Context, id string) (*model.RetryTask, error)

	// GetDue returns pending tasks whose next attempt time has passed.
	GetDue(ctx context.Context, now time.Time, limit int) ([]*model.RetryTask, error)

	// Claim transitions a task from pending to in_progress. Returns false if
	// the task was already claimed by another worker.
	Claim(ctx context.Context, id string, now time.Time) (bool, error)

	MarkSucceeded(ctx context.Context, id string, now time.Time) error

	// Reschedule returns a claimed task to pending with an incremented retry
	// count and a new next attempt time.
	Reschedule(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, lastError string) error

	// MarkFailed terminally fails a task after retries are exhausted.
	MarkFailed(ctx context.Context, id string, retryCount int, now time.Time, lastError string) error

	// ReclaimStale returns in_progress tasks older than cutoff to pending so
	// a crashed worker cannot orphan them.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
}
