package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/bookwise/payment-service/internal/config"
	"github.com/bookwise/payment-service/internal/domain/event"
	"github.com/bookwise/payment-service/internal/domain/model"
	"github.com/bookwise/payment-service/internal/infrastructure/crypto"
	"github.com/bookwise/payment-service/internal/infrastructure/database"
	grpcServer "github.com/bookwise/payment-service/internal/infrastructure/grpc"
	httpServer "github.com/bookwise/payment-service/internal/infrastructure/http"
	"github.com/bookwise/payment-service/internal/infrastructure/messaging"
	"github.com/bookwise/payment-service/internal/usecase"
	"github.com/bookwise/payment-service/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := newLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, logger); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := database.Migrate(db, logger); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	repos := database.NewRepositories(db, logger)

	// Initialize event publisher
	var publisher event.Publisher = event.NopPublisher{}
	if cfg.Redis.Addr != "" {
		publisher, err = messaging.NewRedisPublisher(
			cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Redis.ChannelPrefix, logger)
		if err != nil {
			logger.Fatal("Failed to connect event publisher", zap.Error(err))
		}
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}()

	// Initialize retry queue
	policy := usecase.DefaultRetryPolicy()
	if cfg.Retry.BaseDelay > 0 {
		policy.BaseDelay = cfg.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay > 0 {
		policy.MaxDelay = cfg.Retry.MaxDelay
	}
	if cfg.Retry.MaxRetries > 0 {
		policy.MaxRetries = cfg.Retry.MaxRetries
	}
	if cfg.Retry.HandlerTimeout > 0 {
		policy.HandlerTimeout = cfg.Retry.HandlerTimeout
	}
	if cfg.Retry.BatchSize > 0 {
		policy.BatchSize = cfg.Retry.BatchSize
	}
	retryQueue := usecase.NewRetryQueue(repos.RetryTask, publisher, logger, policy)

	// The confirmation email is delivered by the notification service; this
	// service's responsibility ends at durably fanning the event out.
	retryQueue.RegisterHandler(usecase.OperationConfirmationEmail,
		func(ctx context.Context, payload model.JSONB) error {
			return publisher.Publish(ctx, "notification.email.confirmation", payload)
		})

	// Initialize transaction service
	txOpts := []usecase.TransactionServiceOption{}
	if cfg.Service.TransactionTTL > 0 {
		txOpts = append(txOpts, usecase.WithTransactionTTL(cfg.Service.TransactionTTL))
	}
	if cfg.Service.StoreTimeout > 0 {
		txOpts = append(txOpts, usecase.WithStoreTimeout(cfg.Service.StoreTimeout))
	}
	transactions := usecase.NewTransactionService(
		repos.Transaction, repos.WebhookDelivery, publisher, retryQueue, logger, txOpts...)

	// Initialize webhook signature verifier
	verifierOpts := []crypto.Option{}
	if cfg.Service.TimestampTolerance > 0 {
		verifierOpts = append(verifierOpts, crypto.WithTolerance(cfg.Service.TimestampTolerance))
	}
	verifier := crypto.NewSignatureVerifier([]byte(cfg.Service.WebhookSecret), verifierOpts...)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start retry worker
	retryWorker := worker.NewRetryWorker(retryQueue, transactions, logger, worker.RetryWorkerConfig{
		PollInterval:      cfg.Retry.PollInterval,
		SweepInterval:     cfg.Retry.SweepInterval,
		StaleThreshold:    cfg.Retry.StaleThreshold,
		DeliveryRetention: cfg.Retry.DeliveryRetention,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		retryWorker.Start(ctx)
	}()

	// Initialize servers
	grpcSrv := grpcServer.NewServer(cfg, logger)
	httpSrv := httpServer.NewServer(cfg, logger, transactions, retryQueue, verifier)

	// Start servers
	go func() {
		if err := grpcSrv.Start(); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	// Stop the worker first so no task is claimed mid-shutdown
	cancel()
	wg.Wait()

	// Shutdown servers
	if err := grpcSrv.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	if err := httpSrv.Shutdown(context.Background()); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

func newLogger(cfg *config.LogConfig) (*zap.Logger, error) {
	if cfg.Format == "console" {
		return zap.NewDevelopment()
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zapCfg.Level = level
	}
	return zapCfg.Build()
}
