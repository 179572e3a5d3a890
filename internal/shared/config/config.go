package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Log      LogConfig      `mapstructure:"log"`
	Payments PaymentsConfig `mapstructure:"payments"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PaymentsConfig holds the payment engine configuration.
type PaymentsConfig struct {
	// EnableExternal gates real provider calls. When false every
	// processor runs in mock mode.
	EnableExternal bool `mapstructure:"enable_external"`
	// MockEnabled lets a processor fall back to mock mode when its
	// credentials are absent. When false, absent credentials make
	// processor construction fail instead.
	MockEnabled bool                      `mapstructure:"mock_enabled"`
	HTTPTimeout time.Duration             `mapstructure:"http_timeout"`
	Retry       RetryConfig               `mapstructure:"retry"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
}

// RetryConfig holds the write-path retry policy.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

// ProviderConfig holds per-provider configuration.
type ProviderConfig struct {
	Sandbox  bool          `mapstructure:"sandbox"`
	MaxCalls int           `mapstructure:"max_calls"`
	Window   time.Duration `mapstructure:"window"`
}

// StoreConfig selects and configures the transaction store backend.
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"` // file or postgres
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds database configuration for the postgres store.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN returns the database connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration. A non-empty address switches
// the rate limiter to the redis-backed sliding window.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/blogauto")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("BLOGAUTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if password := os.Getenv("BLOGAUTO_DB_PASSWORD"); password != "" {
		cfg.Store.Postgres.Password = password
	}
	if password := os.Getenv("BLOGAUTO_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".blogauto")
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("payments.enable_external", false)
	v.SetDefault("payments.mock_enabled", true)
	v.SetDefault("payments.http_timeout", 30*time.Second)
	v.SetDefault("payments.retry.max_retries", 3)
	v.SetDefault("payments.retry.base_delay", 2*time.Second)
	v.SetDefault("payments.providers.stripe.sandbox", true)
	v.SetDefault("payments.providers.stripe.max_calls", 100)
	v.SetDefault("payments.providers.stripe.window", time.Hour)
	v.SetDefault("payments.providers.paypal.sandbox", true)
	v.SetDefault("payments.providers.paypal.max_calls", 50)
	v.SetDefault("payments.providers.paypal.window", time.Hour)

	v.SetDefault("store.driver", "file")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.database", "blogauto")
	v.SetDefault("store.postgres.ssl_mode", "disable")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)
}
