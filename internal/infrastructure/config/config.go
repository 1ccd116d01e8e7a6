package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Payment store backends.
const (
	BackendPostgres = "postgres"
	BackendHTTP     = "http"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Resource      ResourceConfig      `mapstructure:"resource"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig      `mapstructure:"cors"`
	BasicAuth       BasicAuthConfig `mapstructure:"basic_auth"`
	RateLimit       int             `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// BasicAuthConfig protects the webhook endpoint. Disabled when Username is empty.
type BasicAuthConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
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

// ResourceConfig selects and configures the store holding payments.
type ResourceConfig struct {
	Backend                 string        `mapstructure:"backend"`
	BaseURL                 string        `mapstructure:"base_url"`
	AuthURL                 string        `mapstructure:"auth_url"`
	ProjectKey              string        `mapstructure:"project_key"`
	ClientID                string        `mapstructure:"client_id"`
	ClientSecret            string        `mapstructure:"client_secret"`
	Scopes                  []string      `mapstructure:"scopes"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	MaxRetries              uint          `mapstructure:"max_retries"`
	RetryDelay              time.Duration `mapstructure:"retry_delay"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

type NotificationConfig struct {
	EnableHMACSignature bool `mapstructure:"enable_hmac_signature"`
	// DefaultHMACKey is used for merchant accounts without an entry in HMACKeys.
	DefaultHMACKey      string            `mapstructure:"hmac_key"`
	HMACKeys            map[string]string `mapstructure:"hmac_keys"`
	RemoveSensitiveData bool              `mapstructure:"remove_sensitive_data"`
	MaxUpdateRetries    int               `mapstructure:"max_update_retries"`
	// EventsFile overrides the built-in event mapping table.
	EventsFile         string                       `mapstructure:"events_file"`
	PaymentMethodNames map[string]map[string]string `mapstructure:"payment_method_names"`
}

type WorkerConfig struct {
	BatchSize      int64         `mapstructure:"batch_size"`
	BlockDuration  time.Duration `mapstructure:"block_duration"`
	ConsumerGroup  string        `mapstructure:"consumer_group"`
	ClaimInterval  time.Duration `mapstructure:"claim_interval"`
	ClaimMinIdle   time.Duration `mapstructure:"claim_min_idle"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("NOTIFICATIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/notifications")

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
	if c.Server.BasicAuth.Username != "" && c.Server.BasicAuth.Password == "" {
		errs = append(errs, fmt.Errorf("server.basic_auth.password is required when a username is set"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}

	switch c.Resource.Backend {
	case BackendPostgres:
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
	case BackendHTTP:
		if c.Resource.BaseURL == "" {
			errs = append(errs, fmt.Errorf("resource.base_url is required for the http backend"))
		}
		if c.Resource.ProjectKey == "" {
			errs = append(errs, fmt.Errorf("resource.project_key is required for the http backend"))
		}
		if c.Resource.ClientID != "" && c.Resource.AuthURL == "" {
			errs = append(errs, fmt.Errorf("resource.auth_url is required when resource.client_id is set"))
		}
	default:
		errs = append(errs, fmt.Errorf("resource.backend must be %q or %q, got %q", BackendPostgres, BackendHTTP, c.Resource.Backend))
	}

	if c.Notification.MaxUpdateRetries < 0 {
		errs = append(errs, fmt.Errorf("notification.max_update_retries must not be negative"))
	}
	if c.Notification.EnableHMACSignature && c.Notification.DefaultHMACKey == "" && len(c.Notification.HMACKeys) == 0 {
		errs = append(errs, fmt.Errorf("notification.hmac_key or notification.hmac_keys is required when signatures are enabled"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Worker.ClaimInterval <= 0 {
		errs = append(errs, fmt.Errorf("worker.claim_interval must be positive"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Resource.Backend == BackendPostgres && c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if !c.Notification.EnableHMACSignature {
			errs = append(errs, fmt.Errorf("notification.enable_hmac_signature required in production"))
		}
		if c.Server.BasicAuth.Username == "" {
			errs = append(errs, fmt.Errorf("server.basic_auth required in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.rate_limit", 600)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "notifications")
	v.SetDefault("database.database", "notifications")
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

	// Resource defaults
	v.SetDefault("resource.backend", BackendPostgres)
	v.SetDefault("resource.timeout", "10s")
	v.SetDefault("resource.max_retries", 3)
	v.SetDefault("resource.retry_delay", "200ms")
	v.SetDefault("resource.circuit_breaker_threshold", 10)
	v.SetDefault("resource.circuit_breaker_timeout", "30s")

	// Notification defaults
	v.SetDefault("notification.enable_hmac_signature", false)
	v.SetDefault("notification.remove_sensitive_data", true)
	v.SetDefault("notification.max_update_retries", 20)

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.consumer_group", "notification-processors")
	v.SetDefault("worker.claim_interval", "30s")
	v.SetDefault("worker.claim_min_idle", "5m")
	v.SetDefault("worker.process_timeout", "60s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "notifications-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HMACKey returns the signing key for a merchant account. Config keys are
// matched case-insensitively since viper lower-cases map keys.
func (c *NotificationConfig) HMACKey(merchantAccount string) (string, bool) {
	if key, ok := c.HMACKeys[strings.ToLower(merchantAccount)]; ok && key != "" {
		return key, true
	}
	for account, key := range c.HMACKeys {
		if strings.EqualFold(account, merchantAccount) && key != "" {
			return key, true
		}
	}
	if c.DefaultHMACKey != "" {
		return c.DefaultHMACKey, true
	}
	return "", false
}
