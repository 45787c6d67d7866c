package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MockProcessor is the name of the in-memory processor.
const MockProcessor = "mock"

// envKeyReplacer maps nested keys like processor.access_token to COURSEPAY_PROCESSOR_ACCESS_TOKEN.
var envKeyReplacer = strings.NewReplacer(".", "_")

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Processor     ProcessorConfig     `mapstructure:"processor"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
	Reconcile     ReconcileConfig     `mapstructure:"reconcile"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PollRateLimit   int           `mapstructure:"poll_rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// AuthConfig verifies tokens issued by the identity provider.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// ProcessorConfig selects and configures the external payment processor.
type ProcessorConfig struct {
	Name            string        `mapstructure:"name"`
	AccessToken     string        `mapstructure:"access_token"`
	WebhookSecret   string        `mapstructure:"webhook_secret"`
	MinChargeMinor  int64         `mapstructure:"min_charge_minor"`
	NotificationURL string        `mapstructure:"notification_url"`
	ScanExpiry      time.Duration `mapstructure:"scan_expiry"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// CheckoutConfig holds values handed to the client for polling and its countdown.
type CheckoutConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Countdown    time.Duration `mapstructure:"countdown"`
}

type ReconcileConfig struct {
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	StalePendingAfter  time.Duration `mapstructure:"stale_pending_after"`
	SweepBatchSize     int           `mapstructure:"sweep_batch_size"`
	ActivationAttempts uint          `mapstructure:"activation_attempts"`
	ActivationDelay    time.Duration `mapstructure:"activation_delay"`
}

type WorkerConfig struct {
	BatchSize          int64         `mapstructure:"batch_size"`
	BlockDuration      time.Duration `mapstructure:"block_duration"`
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	ConsumerGroup      string        `mapstructure:"consumer_group"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("COURSEPAY")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/coursepay")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Worker.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("worker.lock_ttl must be positive"))
	}

	if c.Processor.Name == "" {
		errs = append(errs, fmt.Errorf("processor.name is required"))
	}
	if c.Processor.MinChargeMinor < 0 {
		errs = append(errs, fmt.Errorf("processor.min_charge_minor must not be negative"))
	}
	if c.Processor.Name != MockProcessor {
		if c.Processor.AccessToken == "" {
			errs = append(errs, fmt.Errorf("processor.access_token required for processor %q", c.Processor.Name))
		}
		if c.Processor.WebhookSecret == "" {
			errs = append(errs, fmt.Errorf("processor.webhook_secret required for processor %q", c.Processor.Name))
		}
	}
	if c.Checkout.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("checkout.poll_interval must be positive"))
	}
	if c.Reconcile.StalePendingAfter <= 0 {
		errs = append(errs, fmt.Errorf("reconcile.stale_pending_after must be positive"))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("auth.jwt_secret is required"))
	} else if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Processor.Name == MockProcessor {
			errs = append(errs, fmt.Errorf("processor.name cannot be %q in production", MockProcessor))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.poll_rate_limit", 60)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "coursepay")
	v.SetDefault("database.database", "coursepay")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Processor defaults
	v.SetDefault("processor.name", MockProcessor)
	v.SetDefault("processor.min_charge_minor", 2000)
	v.SetDefault("processor.scan_expiry", "15m")
	v.SetDefault("processor.request_timeout", "20s")

	// Checkout defaults
	v.SetDefault("checkout.poll_interval", "5s")
	v.SetDefault("checkout.countdown", "15m")

	// Reconciliation defaults
	v.SetDefault("reconcile.sweep_interval", "1m")
	v.SetDefault("reconcile.stale_pending_after", "20m")
	v.SetDefault("reconcile.sweep_batch_size", 50)
	v.SetDefault("reconcile.activation_attempts", 3)
	v.SetDefault("reconcile.activation_delay", "200ms")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.consumer_group", "enrollment-activators")
	v.SetDefault("worker.lock_ttl", "30s")
	v.SetDefault("worker.idempotency_ttl", "24h")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_tracing", false)

	v.SetDefault("instance_id", "coursepay-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
