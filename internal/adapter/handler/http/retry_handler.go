package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	errs "github.com/bookwise/payment-service/internal/domain/errors"
	"github.com/bookwise/payment-service/internal/usecase"
)

// RetryHandler exposes retry task snapshots for operational follow-up
type RetryHandler struct {
	queue  *usecase.RetryQueue
	logger *zap.Logger
}

// NewRetryHandler creates a new RetryHandler
func NewRetryHandler(queue *usecase.RetryQueue, logger *zap.Logger) *RetryHandler {
	return &RetryHandler{
		queue:  queue,
		logger: logger,
	}
}

// GetRetryStatus returns the current state of a retry task
func (h *RetryHandler) GetRetryStatus(c echo.Context) error {
	id := c.Param("id")

	task, err := h.queue.GetRetryStatus(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrTaskNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{
				"error": "Retry task not found",
				"code":  "TASK_NOT_FOUND",
			})
		}
		h.logger.Error("Failed to get retry task",
			zap.String("task_id", id),
			zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error": "Temporarily unable to query retry task",
			"code":  "STORE_UNAVAILABLE",
		})
	}

	return c.JSON(http.StatusOK, task)
}
