package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/ordersaga/pkg/config"
	"github.com/utafrali/ordersaga/pkg/database"
	"github.com/utafrali/ordersaga/pkg/retry"
	"github.com/utafrali/ordersaga/pkg/tracing"
)

// Ledger store backends.
const (
	LedgerStoreMemory   = "memory"
	LedgerStoreFile     = "file"
	LedgerStorePostgres = "postgres"
)

// Engine store backends.
const (
	EngineStoreMemory = "memory"
	EngineStoreRedis  = "redis"
)

// Config holds all configuration for the order saga service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort           int           `env:"HTTP_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Inventory ledger
	LedgerStore string `env:"LEDGER_STORE" envDefault:"memory"`
	LedgerFile  string `env:"LEDGER_FILE" envDefault:"inventory.json"`

	// PostgreSQL
	PostgresHost       string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort       int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser       string `env:"POSTGRES_USER" envDefault:"ordersaga"`
	PostgresPass       string `env:"POSTGRES_PASSWORD" envDefault:"ordersaga_secret"`
	PostgresDB         string `env:"POSTGRES_DB" envDefault:"ordersaga"`
	PostgresSSL        string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns         int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns         int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	SlowQueryThreshold int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Execution engine
	EngineStore   string        `env:"ENGINE_STORE" envDefault:"memory"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RunRetention  time.Duration `env:"RUN_RETENTION" envDefault:"168h"`
	StepTimeout   time.Duration `env:"STEP_TIMEOUT" envDefault:"10s"`
	RunTimeout    time.Duration `env:"RUN_TIMEOUT" envDefault:"30s"`

	// Startup retries for stores and brokers
	StartupMaxAttempts uint          `env:"STARTUP_MAX_ATTEMPTS" envDefault:"5"`
	StartupMaxDelay    time.Duration `env:"STARTUP_MAX_DELAY" envDefault:"10s"`

	// Simulated payment gateway
	PaymentFailMarker  string        `env:"PAYMENT_FAIL_MARKER" envDefault:"fail"`
	PaymentSuccessRate float64       `env:"PAYMENT_SUCCESS_RATE" envDefault:"0.5"`
	PaymentLatency     time.Duration `env:"PAYMENT_LATENCY" envDefault:"0s"`

	// Shipping
	ShippingRate int64 `env:"SHIPPING_RATE" envDefault:"10"`

	// Kafka
	KafkaEnabled       bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers       []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"ordersaga"`
	KafkaDedupTTL      time.Duration `env:"KAFKA_DEDUP_TTL" envDefault:"24h"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Submission rate limit per client IP
	SubmitRateLimitRPS   float64 `env:"SUBMIT_RATE_LIMIT_RPS" envDefault:"20"`
	SubmitRateLimitBurst int     `env:"SUBMIT_RATE_LIMIT_BURST" envDefault:"40"`

	// Progress stream
	ProgressPollInterval time.Duration `env:"PROGRESS_POLL_INTERVAL" envDefault:"2s"`

	// Admin
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load ordersaga config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.LedgerStore {
	case LedgerStoreMemory, LedgerStorePostgres:
	case LedgerStoreFile:
		if c.LedgerFile == "" {
			return fmt.Errorf("LEDGER_FILE is required when LEDGER_STORE=file")
		}
	default:
		return fmt.Errorf("invalid LEDGER_STORE: %q", c.LedgerStore)
	}
	switch c.EngineStore {
	case EngineStoreMemory, EngineStoreRedis:
	default:
		return fmt.Errorf("invalid ENGINE_STORE: %q", c.EngineStore)
	}
	if c.StepTimeout <= 0 || c.RunTimeout <= 0 {
		return fmt.Errorf("STEP_TIMEOUT and RUN_TIMEOUT must be positive")
	}
	if c.StepTimeout > c.RunTimeout {
		return fmt.Errorf("STEP_TIMEOUT (%s) exceeds RUN_TIMEOUT (%s)", c.StepTimeout, c.RunTimeout)
	}
	if c.PaymentSuccessRate < 0 || c.PaymentSuccessRate > 1 {
		return fmt.Errorf("PAYMENT_SUCCESS_RATE must be within [0,1]: %v", c.PaymentSuccessRate)
	}
	if c.PaymentLatency < 0 {
		return fmt.Errorf("PAYMENT_LATENCY must not be negative")
	}
	if c.ShippingRate <= 0 {
		return fmt.Errorf("SHIPPING_RATE must be positive: %d", c.ShippingRate)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1]: %v", c.OTELSampleRate)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	if c.StartupMaxAttempts == 0 {
		return fmt.Errorf("STARTUP_MAX_ATTEMPTS must be at least 1")
	}
	if c.ProgressPollInterval <= 0 {
		return fmt.Errorf("PROGRESS_POLL_INTERVAL must be positive")
	}
	return nil
}

// Postgres returns the ledger database settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Redis returns the engine store settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// StartupPolicy returns the retry policy for connecting to dependencies.
func (c *Config) StartupPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.StartupMaxAttempts
	p.MaxInterval = c.StartupMaxDelay
	return p
}

// Tracing returns the OpenTelemetry settings.
func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName:    "ordersaga",
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTELEndpoint,
		SampleRate:     c.OTELSampleRate,
		Enabled:        c.OTELEnabled,
	}
}

// SlowQuery returns the threshold above which queries are logged.
func (c *Config) SlowQuery() time.Duration {
	return time.Duration(c.SlowQueryThreshold) * time.Millisecond
}
