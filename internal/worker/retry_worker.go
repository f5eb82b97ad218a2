package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bookwise/payment-service/internal/usecase"
)

// RetryWorker drains the retry queue on a fixed interval. A slower lookout
// sweep reclaims tasks orphaned by a crash, expires overdue transactions,
// and garbage-collects old webhook delivery records.
type RetryWorker struct {
	queue        *usecase.RetryQueue
	transactions *usecase.TransactionService
	logger       *zap.Logger

	pollInterval      time.Duration
	sweepInterval     time.Duration
	staleThreshold    time.Duration
	deliveryRetention time.Duration
}

// RetryWorkerConfig controls worker scheduling
type RetryWorkerConfig struct {
	PollInterval      time.Duration
	SweepInterval     time.Duration
	StaleThreshold    time.Duration
	DeliveryRetention time.Duration
}

// NewRetryWorker creates a new RetryWorker
func NewRetryWorker(
	queue *usecase.RetryQueue,
	transactions *usecase.TransactionService,
	logger *zap.Logger,
	cfg RetryWorkerConfig,
) *RetryWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 5 * time.Minute
	}
	if cfg.DeliveryRetention <= 0 {
		cfg.DeliveryRetention = 24 * time.Hour
	}
	return &RetryWorker{
		queue:             queue,
		transactions:      transactions,
		logger:            logger,
		pollInterval:      cfg.PollInterval,
		sweepInterval:     cfg.SweepInterval,
		staleThreshold:    cfg.StaleThreshold,
		deliveryRetention: cfg.DeliveryRetention,
	}
}

// Start runs the worker loop. Blocking; returns when ctx is cancelled.
func (w *RetryWorker) Start(ctx context.Context) {
	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(w.sweepInterval)
	defer sweep.Stop()

	w.logger.Info("Retry worker started",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("sweep_interval", w.sweepInterval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Retry worker stopping")
			return
		case <-poll.C:
			w.processOnce(ctx)
		case <-sweep.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *RetryWorker) processOnce(ctx context.Context) {
	stats, err := w.queue.ProcessQueue(ctx)
	if err != nil {
		w.logger.Error("Retry queue pass failed", zap.Error(err))
		return
	}
	if stats.Total > 0 {
		w.logger.Info("Retry queue pass completed",
			zap.Int("total", stats.Total),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("failed", stats.Failed))
	}
}

func (w *RetryWorker) sweepOnce(ctx context.Context) {
	reclaimed, err := w.queue.ReclaimStale(ctx, w.staleThreshold)
	if err != nil {
		w.logger.Error("Failed to reclaim stale retry tasks", zap.Error(err))
	} else if reclaimed > 0 {
		w.logger.Warn("Reclaimed stale in-progress retry tasks",
			zap.Int64("count", reclaimed))
	}

	if w.transactions != nil {
		if _, err := w.transactions.ExpireOverdue(ctx); err != nil {
			w.logger.Error("Failed to expire overdue transactions", zap.Error(err))
		}

		pruned, err := w.transactions.PruneDeliveries(ctx, w.deliveryRetention)
		if err != nil {
			w.logger.Error("Failed to prune webhook deliveries", zap.Error(err))
		} else if pruned > 0 {
			w.logger.Debug("Pruned old webhook deliveries",
				zap.Int64("count", pruned))
		}
	}
}
