package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	errs "github.com/bookwise/payment-service/internal/domain/errors"
	"github.com/bookwise/payment-service/internal/domain/event"
	"github.com/bookwise/payment-service/internal/domain/model"
	"github.com/bookwise/payment-service/internal/domain/repository"
)

// Handler executes one attempt of a retry task's operation. A returned error
// counts as a failed attempt.
type Handler func(ctx context.Context, payload model.JSONB) error

// RetryPolicy controls backoff and attempt accounting
type RetryPolicy struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxRetries     int
	HandlerTimeout time.Duration
	BatchSize      int
}

// DefaultRetryPolicy returns the standard policy: 1s base doubling to a 60s
// cap, five attempts, 30s per handler invocation.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:      time.Second,
		MaxDelay:       60 * time.Second,
		MaxRetries:     5,
		HandlerTimeout: 30 * time.Second,
		BatchSize:      100,
	}
}

// ProcessStats summarizes one queue pass
type ProcessStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RetryQueue is a durable queue of asynchronous operations with exponential
// backoff. Callers enqueue a payload under an operation type; a handler
// registered for that type is invoked with at-least-once semantics until it
// succeeds or attempts are exhausted.
type RetryQueue struct {
	repo      repository.RetryTaskRepository
	publisher event.Publisher
	logger    *zap.Logger
	policy    RetryPolicy
	now       func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// RetryQueueOption configures a RetryQueue
type RetryQueueOption func(*RetryQueue)

// WithQueueClock injects a clock for deterministic scheduling in tests
func WithQueueClock(now func() time.Time) RetryQueueOption {
	return func(q *RetryQueue) {
		q.now = now
	}
}

// NewRetryQueue creates a new RetryQueue
func NewRetryQueue(
	repo repository.RetryTaskRepository,
	publisher event.Publisher,
	logger *zap.Logger,
	policy RetryPolicy,
	opts ...RetryQueueOption,
) *RetryQueue {
	q := &RetryQueue{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		policy:    policy,
		now:       time.Now,
		handlers:  make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// RegisterHandler binds an operation type to its handler. Subsystems
// register their side-effect executors at startup.
func (q *RetryQueue) RegisterHandler(operationType string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[operationType] = handler
}

// Enqueue creates a pending task due immediately. The first attempt is not
// delayed; backoff applies only after a failure.
func (q *RetryQueue) Enqueue(ctx context.Context, operationID, operationType string, payload, metadata model.JSONB) (string, error) {
	if operationType == "" {
		return "", fmt.Errorf("operation type is required")
	}

	now := q.now()
	task := &model.RetryTask{
		ID:            uuid.New().String(),
		OperationID:   operationID,
		OperationType: operationType,
		Payload:       payload,
		Metadata:      metadata,
		Status:        model.RetryStatusPending,
		RetryCount:    0,
		MaxRetries:    q.policy.MaxRetries,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := q.repo.Create(ctx, task); err != nil {
		return "", err
	}

	q.logger.Debug("Retry task enqueued",
		zap.String("task_id", task.ID),
		zap.String("operation_type", operationType),
		zap.String("operation_id", operationID))

	return task.ID, nil
}

// GetRetryStatus returns a snapshot of the task for observability
func (q *RetryQueue) GetRetryStatus(ctx context.Context, taskID string) (*model.RetryTask, error) {
	if taskID == "" {
		return nil, errs.ErrTaskNotFound
	}
	return q.repo.GetByID(ctx, taskID)
}

// CalculateDelay computes the backoff before the given 1-indexed retry
// attempt: the exponential delay is capped at the policy maximum, then the
// upper half is randomized so synchronized tasks fan out instead of
// retrying in lockstep. The returned value never exceeds the cap.
func (q *RetryQueue) CalculateDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := q.policy.MaxDelay
	if attemptNumber-1 < 30 {
		raw := q.policy.BaseDelay << (attemptNumber - 1)
		if raw > 0 && raw < delay {
			delay = raw
		}
	}

	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// ProcessQueue runs one pass over due pending tasks. Each task is claimed,
// executed under its own timeout, and settled independently; one handler
// failing never stops the rest of the pass.
func (q *RetryQueue) ProcessQueue(ctx context.Context) (ProcessStats, error) {
	stats := ProcessStats{}

	tasks, err := q.repo.GetDue(ctx, q.now(), q.policy.BatchSize)
	if err != nil {
		return stats, err
	}

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		claimed, err := q.repo.Claim(ctx, task.ID, q.now())
		if err != nil {
			q.logger.Error("Failed to claim retry task",
				zap.String("task_id", task.ID),
				zap.Error(err))
			continue
		}
		if !claimed {
			// Another worker got it first.
			continue
		}

		stats.Total++
		if q.runTask(ctx, task) {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}

	return stats, nil
}

// runTask executes one attempt and settles the task. Returns true when the
// attempt succeeded.
func (q *RetryQueue) runTask(ctx context.Context, task *model.RetryTask) bool {
	handler := q.handlerFor(task.OperationType)

	var attemptErr error
	if handler == nil {
		attemptErr = &errs.UnknownOperationError{OperationType: task.OperationType}
	} else {
		attemptErr = q.invoke(ctx, handler, task.Payload)
	}

	now := q.now()

	if attemptErr == nil {
		if err := q.repo.MarkSucceeded(ctx, task.ID, now); err != nil {
			q.logger.Error("Failed to mark retry task succeeded",
				zap.String("task_id", task.ID),
				zap.Error(err))
		}
		q.logger.Info("Retry task succeeded",
			zap.String("task_id", task.ID),
			zap.String("operation_type", task.OperationType),
			zap.Int("attempts", task.RetryCount+1))
		return true
	}

	retryCount := task.RetryCount + 1

	if retryCount >= task.MaxRetries {
		if err := q.repo.MarkFailed(ctx, task.ID, retryCount, now, attemptErr.Error()); err != nil {
			q.logger.Error("Failed to mark retry task failed",
				zap.String("task_id", task.ID),
				zap.Error(err))
		}
		q.logger.Error("Retry task exhausted all attempts",
			zap.String("task_id", task.ID),
			zap.String("operation_type", task.OperationType),
			zap.Int("attempts", retryCount),
			zap.Error(attemptErr))
		q.publishExhausted(ctx, task, retryCount, attemptErr)
		return false
	}

	nextAttemptAt := now.Add(q.CalculateDelay(retryCount))
	if err := q.repo.Reschedule(ctx, task.ID, retryCount, nextAttemptAt, attemptErr.Error()); err != nil {
		q.logger.Error("Failed to reschedule retry task",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
	q.logger.Warn("Retry task attempt failed",
		zap.String("task_id", task.ID),
		zap.String("operation_type", task.OperationType),
		zap.Int("retry_count", retryCount),
		zap.Time("next_attempt_at", nextAttemptAt),
		zap.Error(attemptErr))
	return false
}

// invoke runs the handler under its own timeout. A hung handler must not
// block the rest of the queue; a timeout counts as a failed attempt.
func (q *RetryQueue) invoke(ctx context.Context, handler Handler, payload model.JSONB) error {
	attemptCtx, cancel := context.WithTimeout(ctx, q.policy.HandlerTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler(attemptCtx, payload)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return fmt.Errorf("handler timed out after %s: %w", q.policy.HandlerTimeout, attemptCtx.Err())
	}
}

// ReclaimStale returns in_progress tasks stuck past the threshold to
// pending. Called by the worker's lookout sweep.
func (q *RetryQueue) ReclaimStale(ctx context.Context, threshold time.Duration) (int64, error) {
	return q.repo.ReclaimStale(ctx, q.now().Add(-threshold))
}

func (q *RetryQueue) handlerFor(operationType string) Handler {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.handlers[operationType]
}

func (q *RetryQueue) publishExhausted(ctx context.Context, task *model.RetryTask, retryCount int, lastErr error) {
	if q.publisher == nil {
		return
	}
	evt := &event.RetryExhaustedEvent{
		Type:          event.TypeRetryExhausted,
		TaskID:        task.ID,
		OperationID:   task.OperationID,
		OperationType: task.OperationType,
		RetryCount:    retryCount,
		LastError:     lastErr.Error(),
		OccurredAt:    q.now(),
	}
	if err := q.publisher.Publish(ctx, event.TypeRetryExhausted, evt); err != nil {
		q.logger.Error("Failed to publish retry exhausted event",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
}
