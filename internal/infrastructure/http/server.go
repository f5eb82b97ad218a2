package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/bookwise/payment-service/internal/adapter/handler/http"
	"github.com/bookwise/payment-service/internal/config"
	"github.com/bookwise/payment-service/internal/infrastructure/crypto"
	"github.com/bookwise/payment-service/internal/middleware/auth"
	"github.com/bookwise/payment-service/internal/usecase"
)

type Server struct {
	config       *config.Config
	logger       *zap.Logger
	echo         *echo.Echo
	transactions *usecase.TransactionService
	retryQueue   *usecase.RetryQueue
	verifier     *crypto.SignatureVerifier
}

func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	transactions *usecase.TransactionService,
	retryQueue *usecase.RetryQueue,
	verifier *crypto.SignatureVerifier,
) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.Service.ClientURL},
		AllowMethods: []string{echo.GET, echo.POST},
	}))

	return &Server{
		config:       cfg,
		logger:       logger,
		echo:         e,
		transactions: transactions,
		retryQueue:   retryQueue,
		verifier:     verifier,
	}
}

func (s *Server) Start() error {
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "payment",
		})
	})

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(s.logger, s.verifier, s.transactions)
	transactionHandler := handlers.NewTransactionHandler(s.transactions, s.logger)
	retryHandler := handlers.NewRetryHandler(s.retryQueue, s.logger)

	// JWT middleware configuration
	jwtConfig := auth.JWTConfig{
		Secret: s.config.Service.JWTSecret,
		Logger: s.logger,
		SkipPaths: []string{
			"/health",
			"/webhook",
		},
	}

	// API v1 routes (require JWT authentication)
	v1 := s.echo.Group("/api/v1", auth.JWTMiddleware(jwtConfig))

	transactions := v1.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("/:id", transactionHandler.GetTransaction)

	v1.GET("/retries/:id", retryHandler.GetRetryStatus)

	// Webhook route (outside API versioning; authenticated by signature)
	s.echo.POST("/webhook", webhookHandler.HandleWebhook)
}
