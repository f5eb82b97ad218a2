package repository

import (
	"context"
	"time"

	"github.com/bookwise/payment-service/internal/domain/model"
)

// WebhookDeliveryRepository stores idempotency bookkeeping for inbound
// webhook deliveries, keyed by dedup key.
type WebhookDeliveryRepository interface {
	// Record inserts a delivery record, ignoring duplicates on dedup key.
	Record(ctx context.Context, delivery *model.WebhookDelivery) error

	GetByDedupKey(ctx context.Context, dedupKey string) (*model.WebhookDelivery, error)

	// MarkApplied flags the delivery as the one that caused a state change.
	MarkApplied(ctx context.Context, dedupKey string) error

	// DeleteOlderThan removes delivery records received before cutoff.
	// Retention only needs to cover the replay tolerance window.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
