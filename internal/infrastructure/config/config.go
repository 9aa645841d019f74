package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Partner       PartnerConfig       `mapstructure:"partner"`
	Vault         VaultConfig         `mapstructure:"vault"`
	WatchList     WatchListConfig     `mapstructure:"watch_list"`
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
	CORS            CORSConfig    `mapstructure:"cors"`
	// AccessTokenRateLimit caps requests per minute and client IP on the secret-authenticated endpoint.
	AccessTokenRateLimit int `mapstructure:"access_token_rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
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
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ApplicationName string        `mapstructure:"application_name"`
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

// PartnerConfig describes the marketplace partner platform.
type PartnerConfig struct {
	Host                    string        `mapstructure:"host"`
	AuthRedirectURL         string        `mapstructure:"auth_redirect_url"`
	CancelRedirectURL       string        `mapstructure:"cancel_redirect_url"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	MaxAttempts             uint          `mapstructure:"max_attempts"`
	RetryDelay              time.Duration `mapstructure:"retry_delay"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	AccessTokenTTL          time.Duration `mapstructure:"access_token_ttl"`
}

type VaultConfig struct {
	MasterSecret string `mapstructure:"master_secret"`
}

// WatchListConfig points at the JSON file shared with the token refresh scheduler.
type WatchListConfig struct {
	Path    string        `mapstructure:"path"`
	LockKey string        `mapstructure:"lock_key"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type WorkerConfig struct {
	BatchSize           int           `mapstructure:"batch_size"`
	OutboxPollInterval  time.Duration `mapstructure:"outbox_poll_interval"`
	AuditStream         string        `mapstructure:"audit_stream"`
	ReconcileSchedule   string        `mapstructure:"reconcile_schedule"`
	DeletionGracePeriod time.Duration `mapstructure:"deletion_grace_period"`
	IdempotencyTTL      time.Duration `mapstructure:"idempotency_ttl"`
}

type ObservabilityConfig struct {
	LogLevel         string `mapstructure:"log_level"`
	LogFile          string `mapstructure:"log_file"`
	LogFileMaxSizeMB int    `mapstructure:"log_file_max_size_mb"`
	LogFileBackups   int    `mapstructure:"log_file_backups"`
	LogFileMaxAge    int    `mapstructure:"log_file_max_age_days"`
	JaegerEndpoint   string `mapstructure:"jaeger_endpoint"`
	EnableMetrics    bool   `mapstructure:"enable_metrics"`
	EnableTracing    bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("INTEGRATIONS")
	// INTEGRATIONS_PARTNER_HOST -> partner.host
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/integrations")

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
	if c.Server.AccessTokenRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("server.access_token_rate_limit must be positive"))
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

	if u, err := url.Parse(c.Partner.Host); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("partner.host must be an absolute URL"))
	}
	if c.Partner.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("partner.timeout must be positive"))
	}
	if c.Partner.MaxAttempts == 0 || c.Partner.MaxAttempts > 3 {
		errs = append(errs, fmt.Errorf("partner.max_attempts must be between 1 and 3"))
	}
	if c.Partner.AccessTokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("partner.access_token_ttl must be positive"))
	}

	if c.Vault.MasterSecret == "" {
		errs = append(errs, fmt.Errorf("vault.master_secret is required"))
	}
	if c.WatchList.Path == "" {
		errs = append(errs, fmt.Errorf("watch_list.path is required"))
	}
	if c.WatchList.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("watch_list.lock_ttl must be positive"))
	}

	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Worker.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.Worker.ReconcileSchedule); err != nil {
			errs = append(errs, fmt.Errorf("worker.reconcile_schedule: %w", err))
		}
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if len(c.Vault.MasterSecret) < 32 {
			errs = append(errs, fmt.Errorf("vault.master_secret must be at least 32 characters in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
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
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.access_token_rate_limit", 30)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "integrations")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "integrations")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "30m")
	// empty means the service name
	v.SetDefault("database.application_name", "")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Partner defaults
	v.SetDefault("partner.host", "https://partner.shopeemobile.com")
	v.SetDefault("partner.auth_redirect_url", "http://localhost:3000/integrations/callback")
	v.SetDefault("partner.cancel_redirect_url", "http://localhost:3000/integrations/cancelled")
	v.SetDefault("partner.timeout", "10s")
	v.SetDefault("partner.max_attempts", 2)
	v.SetDefault("partner.retry_delay", "300ms")
	v.SetDefault("partner.circuit_breaker_threshold", 5)
	v.SetDefault("partner.circuit_breaker_timeout", "30s")
	v.SetDefault("partner.access_token_ttl", "4h")

	// Registered so AutomaticEnv can supply it; Validate rejects the empty value.
	v.SetDefault("vault.master_secret", "")

	// Watch list defaults
	v.SetDefault("watch_list.path", "./data/refresh-watch.json")
	v.SetDefault("watch_list.lock_key", "integrations:watchlist")
	v.SetDefault("watch_list.lock_ttl", "5s")

	// Worker defaults
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.audit_stream", "integrations:audit")
	v.SetDefault("worker.reconcile_schedule", "*/15 * * * *")
	v.SetDefault("worker.deletion_grace_period", "24h")
	v.SetDefault("worker.idempotency_ttl", "24h")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_file", "")
	v.SetDefault("observability.log_file_max_size_mb", 100)
	v.SetDefault("observability.log_file_backups", 5)
	v.SetDefault("observability.log_file_max_age_days", 14)
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiry", "24h")

	v.SetDefault("instance_id", "integrations-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL is the URL form golang-migrate expects.
func (c *DatabaseConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
