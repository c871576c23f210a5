package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/dafo/internal/application/observers"
	"github.com/aescanero/dafo/internal/application/orchestrator"
	"github.com/aescanero/dafo/internal/config"
	eventsmemory "github.com/aescanero/dafo/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/dafo/pkg/adapters/events/redis"
	ledgermem "github.com/aescanero/dafo/pkg/adapters/ledger/memory"
	"github.com/aescanero/dafo/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/dafo/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/dafo/pkg/adapters/storage/redis"
	"github.com/aescanero/dafo/pkg/api/grpc"
	"github.com/aescanero/dafo/pkg/api/http"
	"github.com/aescanero/dafo/pkg/api/websocket"
	"github.com/aescanero/dafo/pkg/domain"
	"github.com/aescanero/dafo/pkg/ports"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

// store is what both storage backends provide.
type store interface {
	ports.SettingsStorage
	ports.NotificationStorage
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting custody orchestrator",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("orchestrator", cfg.Identity.Orchestrator.Hex()))

	ctx := context.Background()

	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Execution environment: ledger plus simulated integrations.
	ledger := ledgermem.New(logger)
	var genesis *config.Genesis
	if cfg.GenesisFile != "" {
		genesis, err = config.LoadGenesis(cfg.GenesisFile)
		if err != nil {
			logger.Fatal("failed to load genesis", zap.Error(err))
		}
	}
	directory, err := seedGenesis(ctx, genesis, ledger, time.Now, logger)
	if err != nil {
		logger.Fatal("failed to apply genesis", zap.Error(err))
	}

	// Adapters
	var storage store
	switch cfg.Backends.Storage {
	case config.BackendRedis:
		storage = storageredis.NewStorage(redisClient, cfg.Observers.NotificationTTL, logger)
	default:
		storage = storagememory.NewStorage(cfg.Observers.NotificationTTL)
	}

	var eventBus ports.EventBus
	switch cfg.Backends.Events {
	case config.BackendRedis:
		eventBus, err = eventsredis.NewStreamsEventBus(
			redisClient,
			cfg.Redis.ConsumerGroup,
			fmt.Sprintf("dafo-%d", os.Getpid()),
			cfg.Redis.StreamMaxLen,
			logger,
		)
		if err != nil {
			logger.Fatal("failed to create event bus", zap.Error(err))
		}
	default:
		eventBus = eventsmemory.NewInMemoryEventBus(cfg.Observers.QueueSize, logger)
	}

	metricsCollector := prometheus.NewCollector(nil)

	settings, err := bootstrapSettings(ctx, cfg, storage)
	if err != nil {
		logger.Fatal("failed to load settings", zap.Error(err))
	}

	orchestratorMgr, err := orchestrator.NewManager(
		cfg.Identity.Orchestrator,
		settings,
		ledger,
		ledger,
		directory,
		eventBus,
		storage,
		metricsCollector,
		orchestrator.NewValidator(),
		logger,
		orchestrator.Options{
			SwapDeadlineWindow: cfg.Dispatch.SwapDeadlineWindow,
			ReferralCode:       cfg.Dispatch.ReferralCode,
		},
	)
	if err != nil {
		logger.Fatal("failed to create orchestrator", zap.Error(err))
	}

	observerPool := observers.NewPool(
		cfg.Observers.PoolSize,
		cfg.Observers.QueueSize,
		eventBus,
		storage,
		metricsCollector,
		logger,
		cfg.Observers.HealthCheckInterval,
	)
	if err := observerPool.Start(); err != nil {
		logger.Fatal("failed to start observer pool", zap.Error(err))
	}

	// API servers
	httpServer := http.NewServer(&http.Config{
		Port:             cfg.HTTPPort,
		Orchestrator:     orchestratorMgr,
		Notifications:    storage,
		Observers:        observerPool.Health(),
		JWTSecret:        []byte(cfg.API.JWTSecret),
		RateLimit:        cfg.API.RateLimit,
		RateBurst:        cfg.API.RateBurst,
		OperationTimeout: cfg.Timeouts.OperationTimeout,
		Logger:           logger,
	})
	httpServer.SetupWebSocket(websocket.NewHandler(observerPool, logger))

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:         cfg.GRPCPort,
		Orchestrator: orchestratorMgr,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("custody orchestrator started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("storage_backend", cfg.Backends.Storage),
		zap.String("events_backend", cfg.Backends.Events),
		zap.Int("observer_pool_size", cfg.Observers.PoolSize))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := observerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("observer pool shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("custody orchestrator shut down complete")
}

// bootstrapSettings returns the persisted settings, or saves and returns the
// configured ones on first start.
func bootstrapSettings(ctx context.Context, cfg *config.Config, storage ports.SettingsStorage) (*domain.Settings, error) {
	settings, err := storage.LoadSettings(ctx)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	settings = &domain.Settings{
		Admin:     cfg.Identity.Admin,
		Exchange:  cfg.Bindings.Exchange,
		Lending:   cfg.Bindings.Lending,
		Bridge:    cfg.Bindings.Bridge,
		UpdatedAt: time.Now().UTC(),
	}
	if err := storage.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to persist initial settings: %w", err)
	}
	return settings, nil
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
