package repository

import (
	"context"
	"time"

	"github.com/bookwise/payment-service/internal/domain/model"
)

// TransactionRepository is the durable store boundary for payment
// transactions. UpdateStatusIf must be atomic with respect to concurrent
// updates of the same transaction id (row-level compare-and-swap); callers
// rely on the applied result to decide whether a transition actually
// happened.
type TransactionRepository interface {
	Create(ctx context.Context, tx *model.PaymentTransaction) error
	GetByID(ctx context.Context, id string) (*model.PaymentTransaction, error)

	// UpdateStatusIf applies updates to the transaction only if its current
	// status is one of allowedFrom. Returns true when the row was updated.
	UpdateStatusIf(ctx context.Context, id string, allowedFrom []model.TransactionStatus, updates map[string]interface{}) (bool, error)

	// ExpirePending transitions all pending transactions whose expiry has
	// passed to expired. Returns the number of rows transitioned.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}
