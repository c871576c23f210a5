package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/dafo/internal/application/observers"
	"github.com/aescanero/dafo/internal/application/orchestrator"
	"github.com/aescanero/dafo/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const limiterCleanupInterval = 5 * time.Minute

// ObserverHealth reports the state of the notification observers.
type ObserverHealth interface {
	GetStatus() *observers.HealthStatus
}

// Server represents the HTTP API server
type Server struct {
	router        *gin.Engine
	server        *http.Server
	orchestrator  *orchestrator.Manager
	notifications ports.NotificationStorage
	observers     ObserverHealth
	logger        *zap.Logger
	stop          context.CancelFunc
}

// Config holds HTTP server configuration
type Config struct {
	Port          int
	Orchestrator  *orchestrator.Manager
	Notifications ports.NotificationStorage
	Observers     ObserverHealth
	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer  prometheus.Gatherer
	JWTSecret []byte
	// RateLimit is requests per second per client IP; zero disables limiting.
	RateLimit float64
	RateBurst int
	// OperationTimeout bounds each /api/v1 request; zero leaves it unbounded.
	OperationTimeout time.Duration
	Logger           *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:        router,
		orchestrator:  cfg.Orchestrator,
		notifications: cfg.Notifications,
		observers:     cfg.Observers,
		logger:        cfg.Logger,
		stop:          cancel,
	}

	metricsHandler := promhttp.Handler()
	if cfg.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}

	var limiter gin.HandlerFunc
	if cfg.RateLimit > 0 {
		rl := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
		rl.startCleanup(ctx, limiterCleanupInterval)
		limiter = rl.handler()
	}

	s.setupRoutes(metricsHandler, limiter, timeoutMiddleware(cfg.OperationTimeout), authMiddleware(cfg.JWTSecret, cfg.Logger))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(metrics http.Handler, limiter, timeout, auth gin.HandlerFunc) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metrics))

	v1 := s.router.Group("/api/v1")
	if limiter != nil {
		v1.Use(limiter)
	}
	v1.Use(timeout, auth)
	{
		queued := newDispatchQueue().handler(s)

		v1.POST("/swaps/exact-input-single", queued, s.handleExactInputSingle)
		v1.POST("/swaps/exact-input", queued, s.handleExactInput)
		v1.POST("/bridge", queued, s.handleBridge)

		v1.POST("/lending/supply", queued, s.handleSupply)
		v1.POST("/lending/withdraw", queued, s.handleWithdraw)
		v1.POST("/lending/borrow", queued, s.handleBorrow)
		v1.POST("/lending/repay", queued, s.handleRepay)
		v1.GET("/lending/accounts/:address", s.handleAccountData)

		v1.GET("/settings", s.handleGetSettings)
		v1.PUT("/admin/bindings/:binding", s.handleSetBinding)
		v1.POST("/admin/rescue", s.handleRescue)
		v1.POST("/admin/transfer", s.handleTransferAdmin)

		v1.GET("/notifications", s.handleListNotifications)
		v1.GET("/notifications/:id", s.handleGetNotification)
		v1.GET("/observers", s.handleObservers)
	}
}

// SetupWebSocket adds the notification stream. Browsers cannot attach
// headers to an upgrade request, so the stream sits outside the
// authenticated group.
func (s *Server) SetupWebSocket(handler interface{}) {
	if wsHandler, ok := handler.(interface {
		HandleNotificationStream(*gin.Context)
	}); ok {
		s.router.GET("/api/v1/stream/notifications", wsHandler.HandleNotificationStream)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.stop()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}
