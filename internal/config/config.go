package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Backend selects an adapter family.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration for the custody orchestrator
type Config struct {
	// Server configuration
	HTTPPort int    `env:"DAFO_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"DAFO_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Identity  IdentityConfig
	Bindings  BindingConfig
	Dispatch  DispatchConfig
	Backends  BackendConfig
	Redis     RedisConfig
	Observers ObserverConfig
	API       APIConfig

	// GenesisFile seeds the ledger and simulated integrations when set.
	GenesisFile string `env:"DAFO_GENESIS_FILE"`

	Timeouts TimeoutConfig
}

// IdentityConfig names the custody account and the initial administrator.
type IdentityConfig struct {
	Orchestrator common.Address `env:"DAFO_ORCHESTRATOR_ADDRESS" envDefault:"0x00000000000000000000000000000000000000d0"`
	Admin        common.Address `env:"DAFO_ADMIN_ADDRESS"`
}

// BindingConfig holds the initial integration bindings. Persisted settings
// take precedence once they exist.
type BindingConfig struct {
	Exchange common.Address `env:"DAFO_EXCHANGE_ADDRESS"`
	Lending  common.Address `env:"DAFO_LENDING_ADDRESS"`
	Bridge   common.Address `env:"DAFO_BRIDGE_ADDRESS"`
}

// DispatchConfig tunes operation dispatch
type DispatchConfig struct {
	SwapDeadlineWindow time.Duration `env:"DAFO_SWAP_DEADLINE_WINDOW" envDefault:"5m"`
	ReferralCode       uint16        `env:"DAFO_REFERRAL_CODE" envDefault:"0"`
}

// BackendConfig selects storage and event bus implementations
type BackendConfig struct {
	Storage string `env:"DAFO_STORAGE_BACKEND" envDefault:"memory"`
	Events  string `env:"DAFO_EVENTS_BACKEND" envDefault:"memory"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// Streams
	ConsumerGroup string `env:"REDIS_CONSUMER_GROUP" envDefault:"dafo-observers"`
	StreamMaxLen  int64  `env:"REDIS_STREAM_MAX_LEN" envDefault:"100000"`
}

// ObserverConfig holds notification observer configuration
type ObserverConfig struct {
	PoolSize            int           `env:"OBSERVER_POOL_SIZE" envDefault:"4"`
	QueueSize           int           `env:"OBSERVER_QUEUE_SIZE" envDefault:"256"`
	HealthCheckInterval time.Duration `env:"OBSERVER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
	NotificationTTL     time.Duration `env:"OBSERVER_NOTIFICATION_TTL" envDefault:"168h"`
}

// APIConfig holds API authentication and throttling
type APIConfig struct {
	JWTSecret string  `env:"DAFO_JWT_SECRET"`
	RateLimit float64 `env:"DAFO_RATE_LIMIT" envDefault:"20"`
	RateBurst int     `env:"DAFO_RATE_BURST" envDefault:"40"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	OperationTimeout time.Duration `env:"TIMEOUT_OPERATION" envDefault:"30s"`
	ShutdownTimeout  time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

const minJWTSecretLen = 16

// Load applies envFiles (".env" when none are given; missing files are
// ignored) and reads configuration from environment variables. Variables
// already set in the environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.Identity.Orchestrator == (common.Address{}) {
		return fmt.Errorf("orchestrator address is required")
	}
	if c.Identity.Admin == (common.Address{}) {
		return fmt.Errorf("admin address is required")
	}
	if c.Bindings.Exchange == (common.Address{}) {
		return fmt.Errorf("exchange binding is required")
	}
	if c.Bindings.Lending == (common.Address{}) {
		return fmt.Errorf("lending binding is required")
	}

	if c.Dispatch.SwapDeadlineWindow <= 0 {
		return fmt.Errorf("swap deadline window must be positive")
	}

	for name, b := range map[string]string{"storage": c.Backends.Storage, "events": c.Backends.Events} {
		if b != BackendMemory && b != BackendRedis {
			return fmt.Errorf("unsupported %s backend: %s (must be memory or redis)", name, b)
		}
	}
	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Observers.PoolSize < 1 {
		return fmt.Errorf("observer pool size must be at least 1")
	}
	if c.Observers.QueueSize < 1 {
		return fmt.Errorf("observer queue size must be at least 1")
	}

	if len(c.API.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("JWT secret must be at least %d bytes", minJWTSecretLen)
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// UsesRedis reports whether any backend needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Backends.Storage == BackendRedis || c.Backends.Events == BackendRedis
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
