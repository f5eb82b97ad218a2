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

type transactionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *gorm.DB, logger *zap.Logger) domainRepo.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new payment transaction
func (r *transactionRepository) Create(ctx context.Context, tx *model.PaymentTransaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		r.logger.Error("Failed to create transaction",
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
		return fmt.Errorf("%w: create transaction: %v", errs.ErrStoreUnavailable, err)
	}
	return nil
}

// GetByID retrieves a transaction by its id
func (r *transactionRepository) GetByID(ctx context.Context, id string) (*model.PaymentTransaction, error) {
	var tx model.PaymentTransaction

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&tx).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTransactionNotFound
		}
		r.logger.Error("Failed to get transaction",
			zap.String("transaction_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("%w: get transaction: %v", errs.ErrStoreUnavailable, err)
	}

	return &tx, nil
}

// UpdateStatusIf applies updates only when the current status is one of
// allowedFrom. The WHERE clause makes the read-modify-write a single atomic
// statement; RowsAffected reports whether this caller won the transition.
func (r *transactionRepository) UpdateStatusIf(ctx context.Context, id string, allowedFrom []model.TransactionStatus, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("id = ? AND status IN ?", id, allowedFrom).
		Updates(updates)

	if result.Error != nil {
		r.logger.Error("Failed to update transaction status",
			zap.String("transaction_id", id),
			zap.Error(result.Error))
		return false, fmt.Errorf("%w: update transaction status: %v", errs.ErrStoreUnavailable, result.Error)
	}

	return result.RowsAffected > 0, nil
}

// ExpirePending transitions overdue pending transactions to expired.
// Received and confirmed transactions are never expired; settlement outranks
// timeout.
func (r *transactionRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?",
			model.TransactionStatusPending, now).
		Updates(map[string]interface{}{
			"status":     model.TransactionStatusExpired,
			"updated_at": now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to expire pending transactions",
			zap.Error(result.Error))
		return 0, fmt.Errorf("%w: expire pending transactions: %v", errs.ErrStoreUnavailable, result.Error)
	}

	return result.RowsAffected, nil
}
