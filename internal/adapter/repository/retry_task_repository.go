package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	errs "github.com/bookwise/payment-service/internal/domain/errors"
	"github.com/bookwise/payment-service/internal/domain/model"
	domainRepo "github.com/bookwise/payment-service/internal/domain/repository"
)

type retryTaskRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRetryTaskRepository creates a new retry task repository
func NewRetryTaskRepository(db *gorm.DB, logger *zap.Logger) domainRepo.RetryTaskRepository {
	return &retryTaskRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new retry task
func (r *retryTaskRepository) Create(ctx context.Context, task *model.RetryTask) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		r.logger.Error("Failed to create retry task",
			zap.String("task_id", task.ID),
			zap.String("operation_type", task.OperationType),
			zap.Error(err))
		return fmt.Errorf("%w: create retry task: %v", errs.ErrStoreUnavailable, err)
	}
	return nil
}

// GetByID retrieves a retry task by id
func (r *retryTaskRepository) GetByID(ctx context.Context, id string) (*model.RetryTask, error) {
	var task model.RetryTask

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&task).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTaskNotFound
		}
		r.logger.Error("Failed to get retry task",
			zap.String("task_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("%w: get retry task: %v", errs.ErrStoreUnavailable, err)
	}

	return &task, nil
}

// GetDue returns pending tasks whose next attempt time has passed
func (r *retryTaskRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*model.RetryTask, error) {
	var tasks []*model.RetryTask

	query := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", model.RetryStatusPending, now).
		Order("next_attempt_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&tasks).Error; err != nil {
		r.logger.Error("Failed to get due retry tasks",
			zap.Error(err))
		return nil, fmt.Errorf("%w: get due retry tasks: %v", errs.ErrStoreUnavailable, err)
	}

	return tasks, nil
}

// Claim transitions a task from pending to in_progress. The status guard in
// the WHERE clause makes claims safe across concurrent workers.
func (r *retryTaskRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.RetryTask{}).
		Where("id = ? AND status = ?", id, model.RetryStatusPending).
		Updates(map[string]interface{}{
			"status":     model.RetryStatusInProgress,
			"started_at": now,
			"updated_at": now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to claim retry task",
			zap.String("task_id", id),
			zap.Error(result.Error))
		return false, fmt.Errorf("%w: claim retry task: %v", errs.ErrStoreUnavailable, result.Error)
	}

	return result.RowsAffected > 0, nil
}

// MarkSucceeded terminally completes a task
func (r *retryTaskRepository) MarkSucceeded(ctx context.Context, id string, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.RetryTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.RetryStatusSucceeded,
			"completed_at": now,
			"updated_at":   now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark retry task succeeded",
			zap.String("task_id", id),
			zap.Error(result.Error))
		return fmt.Errorf("%w: mark retry task succeeded: %v", errs.ErrStoreUnavailable, result.Error)
	}

	return nil
}

// Reschedule returns a claimed task to pending for another attempt
func (r *retryTaskRepository) Reschedule(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&model.RetryTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          model.RetryStatusPending,
			"retry_count":     retryCount,
			"next_attempt_at": nextAttemptAt,
			"last_error":      &lastError,
			"updated_at":      time.Now(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to reschedule retry task",
			zap.String("task_id", id),
			zap.Error(result.Error))
		return fmt.Errorf("%w: reschedule retry task: %v", errs.ErrStoreUnavailable, result.Error)
	}

	return nil
}

// MarkFailed terminally fails a task after its attempts are exhausted
func (r *retryTaskRepository) MarkFailed(ctx context.Context, id string, retryCount int, now time.Time, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&model.RetryTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.RetryStatusFailed,
			"retry_count":  retryCount,
			"last_error":   &lastError,
			"completed_at": now,
			"updated_at":   now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark retry task failed",
			zap.String("task_id", id),
			zap.Error(result.Error))
		return fmt.Errorf("%w: mark retry task failed: %v", errs.ErrStoreUnavailable, result.Error)
	}

	return nil
}

// ReclaimStale returns in_progress tasks older than cutoff to pending.
// Recovers tasks orphaned by a worker crash mid-processing.
func (r *retryTaskRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.RetryTask{}).
		Where("status = ? AND started_at IS NOT NULL AND started_at < ?",
			model.RetryStatusInProgress, cutoff).
		Updates(map[string]interface{}{
			"status":     model.RetryStatusPending,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to reclaim stale retry tasks",
			zap.Error(result.Error))
		return 0, fmt.Errorf("%w: reclaim stale retry tasks: %v", errs.ErrStoreUnavailable, result.Error)
	}

	return result.RowsAffected, nil
}
