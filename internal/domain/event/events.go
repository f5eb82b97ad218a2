package event

import (
	"context"
	"time"
)

// Event types published to the rest of the platform. The booking-completion
// and notification subsystems subscribe to these channels.
const (
	TypeTransactionCreated   = "transaction.created"
	TypeTransactionConfirmed = "transaction.confirmed"
	TypeRetryExhausted       = "retry.exhausted"
)

// TransactionEvent is the payload for transaction lifecycle events
type TransactionEvent struct {
	Type          string     `json:"type"`
	TransactionID string     `json:"transaction_id"`
	BookingID     string     `json:"booking_id"`
	UserID        string     `json:"user_id"`
	AmountCents   int64      `json:"amount_cents"`
	Status        string     `json:"status"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// RetryExhaustedEvent is published when a retry task runs out of attempts
type RetryExhaustedEvent struct {
	Type          string    `json:"type"`
	TaskID        string    `json:"task_id"`
	OperationID   string    `json:"operation_id"`
	OperationType string    `json:"operation_type"`
	RetryCount    int       `json:"retry_count"`
	LastError     string    `json:"last_error,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher delivers domain events to subscribing collaborators
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
	Close() error
}

// NopPublisher discards all events. Used when no event sink is configured
// and as a default in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
