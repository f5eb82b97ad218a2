package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	errs "github.com/bookwise/payment-service/internal/domain/errors"
)

// SignatureVerifier authenticates an inbound webhook request
type SignatureVerifier interface {
	Verify(body []byte, signatureHeader, timestampHeader string) error
	Tolerance() time.Duration
}

// TransactionApplier applies an authenticated webhook event to the
// transaction state machine
type TransactionApplier interface {
	ApplyWebhookEvent(ctx context.Context, dedupKey, transactionID, reportedStatus string, amountCents int64) (bool, error)
}

// WebhookHandler handles inbound payment processor webhooks. It stays thin:
// authenticate, deduplicate, delegate.
type WebhookHandler struct {
	logger   *zap.Logger
	verifier SignatureVerifier
	service  TransactionApplier
	validate *validator.Validate
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(logger *zap.Logger, verifier SignatureVerifier, service TransactionApplier) *WebhookHandler {
	return &WebhookHandler{
		logger:   logger,
		verifier: verifier,
		service:  service,
		validate: validator.New(),
	}
}

// WebhookPayload is the inbound processor event body
type WebhookPayload struct {
	TransactionID    string `json:"transaction_id"`
	TransactionIDAlt string `json:"transactionId"`
	Status           string `json:"status" validate:"required,oneof=confirmed received failed"`
	Amount           int64  `json:"amount" validate:"required,gt=0"`
	Timestamp        string `json:"timestamp"`
	WebhookID        string `json:"webhook_id,omitempty"`
}

func (p *WebhookPayload) transactionID() string {
	if p.TransactionID != "" {
		return p.TransactionID
	}
	return p.TransactionIDAlt
}

// HandleWebhook processes a payment processor webhook delivery
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Failed to read request body",
			"code":  "INVALID_REQUEST",
		})
	}

	signature := c.Request().Header.Get("x-signature")
	timestamp := c.Request().Header.Get("x-timestamp")

	if err := h.verifier.Verify(body, signature, timestamp); err != nil {
		switch {
		case errors.Is(err, errs.ErrStaleTimestamp):
			// Distinct from auth failure: the processor is expected to
			// redeliver with a fresh timestamp.
			h.logger.Warn("Webhook timestamp outside tolerance",
				zap.String("timestamp", timestamp))
			return c.JSON(http.StatusRequestTimeout, echo.Map{
				"error": "Webhook timestamp outside tolerance window",
				"code":  "STALE_TIMESTAMP",
			})
		default:
			h.logger.Warn("Webhook signature verification failed",
				zap.Error(err))
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"error": "Webhook signature verification failed",
				"code":  "INVALID_SIGNATURE",
			})
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("Failed to parse webhook payload", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Malformed webhook payload",
			"code":  "INVALID_PAYLOAD",
		})
	}
	if payload.transactionID() == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "transaction_id is required",
			"code":  "INVALID_PAYLOAD",
		})
	}
	if err := h.validate.Struct(&payload); err != nil {
		h.logger.Warn("Webhook payload validation failed",
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Malformed webhook payload",
			"code":  "INVALID_PAYLOAD",
		})
	}

	dedupKey := h.dedupKey(&payload, timestamp)

	h.logger.Info("Processing webhook event",
		zap.String("transaction_id", payload.transactionID()),
		zap.String("status", payload.Status),
		zap.String("dedup_key", dedupKey))

	applied, err := h.service.ApplyWebhookEvent(ctx, dedupKey, payload.transactionID(), payload.Status, payload.Amount)
	if err != nil {
		return h.applyError(c, &payload, err)
	}

	// Always acknowledge once authentication passed, including idempotent
	// no-ops, so the processor's own retry logic backs off.
	return c.JSON(http.StatusOK, echo.Map{
		"received": true,
		"applied":  applied,
	})
}

func (h *WebhookHandler) applyError(c echo.Context, payload *WebhookPayload, err error) error {
	var mismatch *errs.AmountMismatchError

	switch {
	case errors.As(err, &mismatch):
		h.logger.Warn("Webhook rejected: amount mismatch",
			zap.String("transaction_id", mismatch.TransactionID),
			zap.Int64("expected_cents", mismatch.Expected),
			zap.Int64("reported_cents", mismatch.Reported))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Webhook rejected",
			"code":  "AMOUNT_MISMATCH",
		})
	case errors.Is(err, errs.ErrTransactionNotFound):
		// Same body shape as other rejections; only the status differs.
		h.logger.Warn("Webhook for unknown transaction",
			zap.String("transaction_id", payload.transactionID()))
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "Webhook rejected",
			"code":  "UNKNOWN_TRANSACTION",
		})
	case errors.Is(err, errs.ErrStoreUnavailable):
		h.logger.Error("Webhook processing failed: store unavailable",
			zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error": "Temporarily unable to process webhook",
			"code":  "STORE_UNAVAILABLE",
		})
	default:
		h.logger.Error("Webhook processing failed",
			zap.String("transaction_id", payload.transactionID()),
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Webhook rejected",
			"code":  "WEBHOOK_REJECTED",
		})
	}
}

// dedupKey derives the idempotency key for a delivery: the processor's
// webhook id when supplied, otherwise the event fields plus the timestamp
// bucketed to the tolerance window so a legitimate re-send outside the
// replay window gets a fresh key.
func (h *WebhookHandler) dedupKey(payload *WebhookPayload, timestampHeader string) string {
	if payload.WebhookID != "" {
		return "wh:" + payload.WebhookID
	}

	bucket := int64(0)
	if ts, err := parseUnixSeconds(timestampHeader); err == nil {
		if window := int64(h.verifier.Tolerance().Seconds()); window > 0 {
			bucket = ts / window
		}
	}

	return fmt.Sprintf("%s:%s:%d:%d", payload.transactionID(), payload.Status, payload.Amount, bucket)
}

func parseUnixSeconds(value string) (int64, error) {
	var ts int64
	_, err := fmt.Sscanf(value, "%d", &ts)
	return ts, err
}
