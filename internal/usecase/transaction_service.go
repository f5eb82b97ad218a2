package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	errs "github.com/bookwise/payment-service/internal/domain/errors"
	"github.com/bookwise/payment-service/internal/domain/event"
	"github.com/bookwise/payment-service/internal/domain/model"
	"github.com/bookwise/payment-service/internal/domain/repository"
)

// OperationConfirmationEmail is the retry-queue operation type for the
// booking confirmation email sent after settlement.
const OperationConfirmationEmail = "payment.confirmation_email"

// SideEffectEnqueuer hands asynchronous side effects to the durable retry
// queue. Satisfied by RetryQueue.
type SideEffectEnqueuer interface {
	Enqueue(ctx context.Context, operationID, operationType string, payload, metadata model.JSONB) (string, error)
}

// CreateTransactionInput carries the fields needed to initiate a payment
type CreateTransactionInput struct {
	BookingID   string
	UserID      string
	AmountCents int64
	Currency    string
}

// DefaultStoreTimeout bounds the store access of a single webhook
// application so a stuck database cannot pin request-handling goroutines.
const DefaultStoreTimeout = 10 * time.Second

// TransactionService owns the payment transaction lifecycle: creation,
// webhook-driven status transitions, expiry, and idempotency bookkeeping
// for webhook deliveries.
type TransactionService struct {
	txRepo       repository.TransactionRepository
	deliveryRepo repository.WebhookDeliveryRepository
	publisher    event.Publisher
	sideEffects  SideEffectEnqueuer
	logger       *zap.Logger
	ttl          time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

// TransactionServiceOption configures a TransactionService
type TransactionServiceOption func(*TransactionService)

// WithTransactionTTL overrides the default payment expiry window
func WithTransactionTTL(ttl time.Duration) TransactionServiceOption {
	return func(s *TransactionService) {
		s.ttl = ttl
	}
}

// WithStoreTimeout overrides the bound on store access per webhook
// application
func WithStoreTimeout(d time.Duration) TransactionServiceOption {
	return func(s *TransactionService) {
		s.storeTimeout = d
	}
}

// WithClock injects a clock for deterministic expiry and confirmation times
func WithClock(now func() time.Time) TransactionServiceOption {
	return func(s *TransactionService) {
		s.now = now
	}
}

// NewTransactionService creates a new TransactionService
func NewTransactionService(
	txRepo repository.TransactionRepository,
	deliveryRepo repository.WebhookDeliveryRepository,
	publisher event.Publisher,
	sideEffects SideEffectEnqueuer,
	logger *zap.Logger,
	opts ...TransactionServiceOption,
) *TransactionService {
	s := &TransactionService{
		txRepo:       txRepo,
		deliveryRepo: deliveryRepo,
		publisher:    publisher,
		sideEffects:  sideEffects,
		logger:       logger,
		ttl:          30 * time.Minute,
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTransaction initiates a pending payment transaction and generates
// its presentation payloads
func (s *TransactionService) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*model.PaymentTransaction, error) {
	if input.BookingID == "" {
		return nil, errors.New("booking ID is required")
	}
	if input.UserID == "" {
		return nil, errors.New("user ID is required")
	}
	if input.AmountCents <= 0 {
		return nil, errors.New("invalid payment amount")
	}

	currency := input.Currency
	if currency == "" {
		currency = "BRL"
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)

	tx := &model.PaymentTransaction{
		ID:          uuid.New().String(),
		BookingID:   input.BookingID,
		UserID:      input.UserID,
		AmountCents: input.AmountCents,
		Currency:    currency,
		Status:      model.TransactionStatusPending,
		ExpiresAt:   &expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx.BRCode = buildBRCode(tx)
	tx.QRCode = base64.StdEncoding.EncodeToString([]byte(tx.BRCode))

	if err := s.txRepo.Create(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.Info("Payment transaction created",
		zap.String("transaction_id", tx.ID),
		zap.String("booking_id", tx.BookingID),
		zap.Int64("amount_cents", tx.AmountCents),
		zap.Time("expires_at", expiresAt))

	s.publish(ctx, event.TypeTransactionCreated, &event.TransactionEvent{
		Type:          event.TypeTransactionCreated,
		TransactionID: tx.ID,
		BookingID:     tx.BookingID,
		UserID:        tx.UserID,
		AmountCents:   tx.AmountCents,
		Status:        string(tx.Status),
		OccurredAt:    now,
	})

	return tx, nil
}

// GetTransaction returns the current state of a transaction. Read-only.
func (s *TransactionService) GetTransaction(ctx context.Context, id string) (*model.PaymentTransaction, error) {
	if id == "" {
		return nil, errs.ErrTransactionNotFound
	}
	return s.txRepo.GetByID(ctx, id)
}

// ApplyWebhookEvent applies a webhook-reported status to the transaction
// state machine. Returns whether a genuine state change was applied.
// Duplicate deliveries and terminal-state replays succeed as no-ops; the
// upstream processor retries on error, so only real faults return one.
// Store access is bounded by the store timeout; on expiry the caller gets
// ErrStoreUnavailable and the processor retries the delivery.
func (s *TransactionService) ApplyWebhookEvent(ctx context.Context, dedupKey, transactionID, reportedStatus string, amountCents int64) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	type outcome struct {
		applied bool
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		applied, err := s.applyWebhookEvent(opCtx, dedupKey, transactionID, reportedStatus, amountCents)
		done <- outcome{applied, err}
	}()

	select {
	case out := <-done:
		return out.applied, out.err
	case <-opCtx.Done():
		s.logger.Error("Webhook store access timed out",
			zap.String("transaction_id", transactionID),
			zap.Duration("store_timeout", s.storeTimeout))
		return false, fmt.Errorf("%w: store access timed out after %s",
			errs.ErrStoreUnavailable, s.storeTimeout)
	}
}

func (s *TransactionService) applyWebhookEvent(ctx context.Context, dedupKey, transactionID, reportedStatus string, amountCents int64) (bool, error) {
	// Idempotent fast path: this exact delivery already applied a change.
	existing, err := s.deliveryRepo.GetByDedupKey(ctx, dedupKey)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.AppliedStatusChange {
		s.logger.Info("Duplicate webhook delivery acknowledged",
			zap.String("dedup_key", dedupKey),
			zap.String("transaction_id", transactionID))
		return false, nil
	}

	targetStatus, allowedFrom, err := transitionFor(reportedStatus)
	if err != nil {
		return false, err
	}

	tx, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, errs.ErrTransactionNotFound) {
			// The signature already passed, so a redelivery after the row
			// shows up late still has its bookkeeping.
			s.recordDelivery(ctx, dedupKey, transactionID, reportedStatus, true)
		}
		return false, err
	}

	if tx.AmountCents != amountCents {
		s.logger.Warn("Webhook amount mismatch",
			zap.String("transaction_id", transactionID),
			zap.Int64("expected_cents", tx.AmountCents),
			zap.Int64("reported_cents", amountCents))
		return false, errs.NewAmountMismatchError(transactionID, tx.AmountCents, amountCents)
	}

	s.recordDelivery(ctx, dedupKey, transactionID, reportedStatus, true)

	// Terminal states are monotonic: acknowledge the replay without
	// touching timestamps or firing events.
	if tx.Status.IsTerminal() {
		s.logger.Info("Webhook for terminal transaction acknowledged",
			zap.String("transaction_id", transactionID),
			zap.String("current_status", string(tx.Status)),
			zap.String("reported_status", reportedStatus))
		return false, nil
	}

	now := s.now()
	updates := map[string]interface{}{
		"status":     targetStatus,
		"updated_at": now,
	}
	if targetStatus == model.TransactionStatusConfirmed {
		updates["confirmed_at"] = now
	}

	applied, err := s.txRepo.UpdateStatusIf(ctx, transactionID, allowedFrom, updates)
	if err != nil {
		return false, err
	}
	if !applied {
		// Lost the race to a concurrent delivery, or the transition is not
		// valid from the current state. Either way the delivery is a no-op.
		s.logger.Info("Webhook transition not applied",
			zap.String("transaction_id", transactionID),
			zap.String("reported_status", reportedStatus))
		return false, nil
	}

	if err := s.deliveryRepo.MarkApplied(ctx, dedupKey); err != nil {
		s.logger.Error("Failed to mark delivery applied",
			zap.String("dedup_key", dedupKey),
			zap.Error(err))
	}

	s.logger.Info("Webhook transition applied",
		zap.String("transaction_id", transactionID),
		zap.String("from_status", string(tx.Status)),
		zap.String("to_status", string(targetStatus)))

	if targetStatus == model.TransactionStatusConfirmed {
		s.onConfirmed(ctx, tx, now)
	}

	return true, nil
}

// ExpireOverdue sweeps pending transactions whose expiry has passed
func (s *TransactionService) ExpireOverdue(ctx context.Context) (int64, error) {
	expired, err := s.txRepo.ExpirePending(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.logger.Info("Expired overdue pending transactions",
			zap.Int64("count", expired))
	}
	return expired, nil
}

// PruneDeliveries removes webhook delivery records received before the
// retention window. Retention only needs to cover the replay tolerance.
func (s *TransactionService) PruneDeliveries(ctx context.Context, retention time.Duration) (int64, error) {
	return s.deliveryRepo.DeleteOlderThan(ctx, s.now().Add(-retention))
}

func (s *TransactionService) onConfirmed(ctx context.Context, tx *model.PaymentTransaction, confirmedAt time.Time) {
	s.publish(ctx, event.TypeTransactionConfirmed, &event.TransactionEvent{
		Type:          event.TypeTransactionConfirmed,
		TransactionID: tx.ID,
		BookingID:     tx.BookingID,
		UserID:        tx.UserID,
		AmountCents:   tx.AmountCents,
		Status:        string(model.TransactionStatusConfirmed),
		ConfirmedAt:   &confirmedAt,
		OccurredAt:    confirmedAt,
	})

	if s.sideEffects == nil {
		return
	}

	taskID, err := s.sideEffects.Enqueue(ctx, tx.ID, OperationConfirmationEmail,
		model.JSONB{
			"transaction_id": tx.ID,
			"booking_id":     tx.BookingID,
			"user_id":        tx.UserID,
			"amount_cents":   tx.AmountCents,
		},
		model.JSONB{
			"currency": tx.Currency,
		})
	if err != nil {
		// The confirmation itself is durable; the email will be picked up
		// by the next operational sweep or re-sent manually.
		s.logger.Error("Failed to enqueue confirmation email",
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
		return
	}

	s.logger.Debug("Confirmation email enqueued",
		zap.String("transaction_id", tx.ID),
		zap.String("task_id", taskID))
}

func (s *TransactionService) recordDelivery(ctx context.Context, dedupKey, transactionID, eventType string, signatureValid bool) {
	err := s.deliveryRepo.Record(ctx, &model.WebhookDelivery{
		DedupKey:            dedupKey,
		TransactionID:       transactionID,
		EventType:           eventType,
		SignatureValid:      signatureValid,
		AppliedStatusChange: false,
		ReceivedAt:          s.now(),
	})
	if err != nil {
		s.logger.Error("Failed to record webhook delivery",
			zap.String("dedup_key", dedupKey),
			zap.Error(err))
	}
}

func (s *TransactionService) publish(ctx context.Context, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logger.Error("Failed to publish domain event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// transitionFor maps a webhook-reported status to a target status and the
// set of states the transition may be applied from.
func transitionFor(reportedStatus string) (model.TransactionStatus, []model.TransactionStatus, error) {
	switch reportedStatus {
	case string(model.TransactionStatusReceived):
		return model.TransactionStatusReceived,
			[]model.TransactionStatus{model.TransactionStatusPending}, nil
	case string(model.TransactionStatusConfirmed):
		return model.TransactionStatusConfirmed,
			[]model.TransactionStatus{model.TransactionStatusPending, model.TransactionStatusReceived}, nil
	case string(model.TransactionStatusFailed):
		return model.TransactionStatusFailed,
			[]model.TransactionStatus{model.TransactionStatusPending, model.TransactionStatusReceived}, nil
	default:
		return "", nil, fmt.Errorf("unknown webhook status %q", reportedStatus)
	}
}

// buildBRCode assembles the copy-and-paste payment payload presented to the
// payer. The format is opaque to this service; downstream rendering turns it
// into a scannable code.
func buildBRCode(tx *model.PaymentTransaction) string {
	return fmt.Sprintf("BW|%s|%s|%d|%d",
		tx.ID, tx.Currency, tx.AmountCents, tx.ExpiresAt.Unix())
}
