package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bookwise/payment-service/internal/domain/model"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	// Create custom types BEFORE auto-migrate
	if err := createCustomTypes(db); err != nil {
		logger.Error("Failed to create custom types", zap.Error(err))
		return err
	}

	err := db.AutoMigrate(
		&model.PaymentTransaction{},
		&model.WebhookDelivery{},
		&model.RetryTask{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomTypes creates custom PostgreSQL types
func createCustomTypes(db *gorm.DB) error {
	var exists bool

	db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'transaction_status')`).Scan(&exists)
	if !exists {
		if err := db.Exec(`CREATE TYPE transaction_status AS ENUM ('pending', 'received', 'confirmed', 'expired', 'failed')`).Error; err != nil {
			return err
		}
	}

	db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'retry_status')`).Scan(&exists)
	if !exists {
		if err := db.Exec(`CREATE TYPE retry_status AS ENUM ('pending', 'in_progress', 'succeeded', 'failed')`).Error; err != nil {
			return err
		}
	}

	return nil
}

// createCustomIndexes creates partial indexes that GORM doesn't handle
// automatically
func createCustomIndexes(db *gorm.DB) error {
	// Index the retry worker's polling query: due pending tasks only
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_retry_tasks_due ON retry_tasks (next_attempt_at) WHERE status = 'pending'`).Error; err != nil {
		return err
	}

	// Index the expiry sweep: overdue pending transactions only
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_transactions_pending_expiry ON payment_transactions (expires_at) WHERE status = 'pending'`).Error; err != nil {
		return err
	}

	// Index the stale-task lookout sweep
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_retry_tasks_stale ON retry_tasks (started_at) WHERE status = 'in_progress'`).Error; err != nil {
		return err
	}

	return nil
}
