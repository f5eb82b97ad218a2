package http

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	errs "github.com/bookwise/payment-service/internal/domain/errors"
	"github.com/bookwise/payment-service/internal/middleware/auth"
	"github.com/bookwise/payment-service/internal/usecase"
)

// TransactionHandler exposes transaction creation and the read-only status
// query endpoint
type TransactionHandler struct {
	service  *usecase.TransactionService
	logger   *zap.Logger
	validate *validator.Validate
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(service *usecase.TransactionService, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		service:  service,
		logger:   logger,
		validate: validator.New(),
	}
}

// CreateTransactionRequest is the create-transaction request body
type CreateTransactionRequest struct {
	BookingID   string `json:"booking_id" validate:"required"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency    string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// CreateTransaction initiates a pending payment for a booking
func (h *TransactionHandler) CreateTransaction(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err // RequireAuth already returns the JSON error response
	}

	var req CreateTransactionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Malformed request body",
			"code":  "INVALID_REQUEST",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		h.logger.Warn("Create transaction validation failed",
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid transaction request",
			"code":  "INVALID_REQUEST",
		})
	}

	tx, err := h.service.CreateTransaction(c.Request().Context(), usecase.CreateTransactionInput{
		BookingID:   req.BookingID,
		UserID:      user.UserID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	})
	if err != nil {
		if errors.Is(err, errs.ErrStoreUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{
				"error": "Temporarily unable to create transaction",
				"code":  "STORE_UNAVAILABLE",
			})
		}
		h.logger.Error("Failed to create transaction",
			zap.String("booking_id", req.BookingID),
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": err.Error(),
			"code":  "INVALID_REQUEST",
		})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"transaction_id": tx.ID,
		"status":         tx.Status,
		"amount_cents":   tx.AmountCents,
		"currency":       tx.Currency,
		"qr_code":        tx.QRCode,
		"br_code":        tx.BRCode,
		"expires_at":     tx.ExpiresAt,
	})
}

// GetTransaction returns the current lifecycle state of a transaction.
// Read-only, no side effects.
func (h *TransactionHandler) GetTransaction(c echo.Context) error {
	id := c.Param("id")

	tx, err := h.service.GetTransaction(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrTransactionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{
				"error": "Transaction not found",
				"code":  "TRANSACTION_NOT_FOUND",
			})
		}
		h.logger.Error("Failed to get transaction",
			zap.String("transaction_id", id),
			zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error": "Temporarily unable to query transaction",
			"code":  "STORE_UNAVAILABLE",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"transactionId": tx.ID,
		"status":        tx.Status,
		"confirmedAt":   tx.ConfirmedAt,
	})
}
