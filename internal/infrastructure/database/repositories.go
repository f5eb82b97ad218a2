package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bookwise/payment-service/internal/adapter/repository"
	domainRepo "github.com/bookwise/payment-service/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	Transaction     domainRepo.TransactionRepository
	WebhookDelivery domainRepo.WebhookDeliveryRepository
	RetryTask       domainRepo.RetryTaskRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Transaction:     repository.NewTransactionRepository(db, logger),
		WebhookDelivery: repository.NewWebhookDeliveryRepository(db, logger),
		RetryTask:       repository.NewRetryTaskRepository(db, logger),
	}
}
