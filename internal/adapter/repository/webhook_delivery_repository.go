package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	errs "github.com/bookwise/payment-service/internal/domain/errors"
	"github.com/bookwise/payment-service/internal/domain/model"
	domainRepo "github.com/bookwise/payment-service/internal/domain/repository"
)

type webhookDeliveryRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookDeliveryRepository creates a new webhook delivery repository
func NewWebhookDeliveryRepository(db *gorm.DB, logger *zap.Logger) domainRepo.WebhookDeliveryRepository {
	return &webhookDeliveryRepository{
		db:     db,
		logger: logger,
	}
}

// Record inserts a delivery record. Duplicate dedup keys are ignored so
// concurrent redeliveries race safely; callers re-read by dedup key to see
// which delivery won.
func (r *webhookDeliveryRepository) Record(ctx context.Context, delivery *model.WebhookDelivery) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).
		Create(delivery).Error

	if err != nil {
		r.logger.Error("Failed to record webhook delivery",
			zap.String("dedup_key", delivery.DedupKey),
			zap.String("transaction_id", delivery.TransactionID),
			zap.Error(err))
		return fmt.Errorf("%w: record webhook delivery: %v", errs.ErrStoreUnavailable, err)
	}

	return nil
}

// GetByDedupKey retrieves a delivery record, returning nil when unseen
func (r *webhookDeliveryRepository) GetByDedupKey(ctx context.Context, dedupKey string) (*model.WebhookDelivery, error) {
	var delivery model.WebhookDelivery

	err := r.db.WithContext(ctx).
		Where("dedup_key = ?", dedupKey).
		First(&delivery).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get webhook delivery",
			zap.String("dedup_key", dedupKey),
			zap.Error(err))
		return nil, fmt.Errorf("%w: get webhook delivery: %v", errs.ErrStoreUnavailable, err)
	}

	return &delivery, nil
}

// MarkApplied flags the delivery as the one that caused the state change
func (r *webhookDeliveryRepository) MarkApplied(ctx context.Context, dedupKey string) error {
	result := r.db.WithContext(ctx).
		Model(&model.WebhookDelivery{}).
		Where("dedup_key = ?", dedupKey).
		Update("applied_status_change", true)

	if result.Error != nil {
		r.logger.Error("Failed to mark webhook delivery applied",
			zap.String("dedup_key", dedupKey),
			zap.Error(result.Error))
		return fmt.Errorf("%w: mark webhook delivery applied: %v", errs.ErrStoreUnavailable, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook delivery not found: %s", dedupKey)
	}

	return nil
}

// DeleteOlderThan garbage-collects delivery records past the replay window
func (r *webhookDeliveryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("received_at < ?", cutoff).
		Delete(&model.WebhookDelivery{})

	if result.Error != nil {
		r.logger.Error("Failed to delete old webhook deliveries",
			zap.Time("cutoff", cutoff),
			zap.Error(result.Error))
		return 0, fmt.Errorf("%w: delete old webhook deliveries: %v", errs.ErrStoreUnavailable, result.Error)
	}

	return result.RowsAffected, nil
}
