// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. LABORSTATS_SERVER_PORT.
const EnvPrefix = "LABORSTATS"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Dataset DatasetConfig `mapstructure:"dataset"`
	Cache   CacheConfig   `mapstructure:"cache"`
	DB      DBConfig      `mapstructure:"db"`
	ETL     ETLConfig     `mapstructure:"etl"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int      `mapstructure:"port"`
	RequestTimeoutSeconds  int      `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds"`
	CORSOrigins            []string `mapstructure:"cors_origins"`
}

// AuthConfig guards mutating endpoints with a shared key.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DatasetConfig points at the upstream open-data resource.
type DatasetConfig struct {
	URL              string `mapstructure:"url"`
	APIKey           string `mapstructure:"api_key"`
	Name             string `mapstructure:"name"`
	UserAgent        string `mapstructure:"user_agent"`
	Limit            int    `mapstructure:"limit"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// CacheConfig configures the remote and local cache tiers. An empty RedisURL runs local-only.
type CacheConfig struct {
	RedisURL  string `mapstructure:"redis_url"`
	Namespace string `mapstructure:"namespace"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	PoolSize  int    `mapstructure:"pool_size"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// ETLConfig schedules background ingestion. An empty Schedule disables it.
type ETLConfig struct {
	Schedule   string `mapstructure:"schedule"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// legacyEnv maps config keys to the unprefixed variable names older deployments set.
var legacyEnv = map[string]string{
	"dataset.api_key": "API_KEY",
	"dataset.url":     "DATASET_URL",
	"cache.redis_url": "REDIS_URL",
	"db.dsn":          "DATABASE_URL",
	"server.port":     "PORT",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("dataset.name", "district_monthly")
	v.SetDefault("dataset.user_agent", "labor-stats-dashboard/1.0")
	v.SetDefault("dataset.limit", 5000)
	v.SetDefault("dataset.timeout_seconds", 30)
	v.SetDefault("dataset.max_retries", 3)
	v.SetDefault("dataset.backoff_initial_ms", 1000)
	v.SetDefault("dataset.backoff_max_ms", 8000)
	v.SetDefault("cache.namespace", "laborstats")
	v.SetDefault("cache.timeout_ms", 2000)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("etl.schedule", "")
	v.SetDefault("etl.run_on_start", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Dataset.Limit <= 0 {
		return fmt.Errorf("dataset.limit must be > 0")
	}
	if c.Dataset.TimeoutSeconds <= 0 {
		return fmt.Errorf("dataset.timeout_seconds must be > 0")
	}
	if c.Dataset.MaxRetries < 0 {
		return fmt.Errorf("dataset.max_retries must be >= 0")
	}
	if c.Cache.TimeoutMs <= 0 {
		return fmt.Errorf("cache.timeout_ms must be > 0")
	}
	if c.DB.MinConns > c.DB.MaxConns && c.DB.MaxConns > 0 {
		return fmt.Errorf("db.min_conns must not exceed db.max_conns")
	}
	return nil
}

// RequestTimeout is the per-request handler budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// FetchTimeout is the per-attempt upstream budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Dataset.TimeoutSeconds) * time.Second
}

// CacheTimeout bounds each remote cache call.
func (c Config) CacheTimeout() time.Duration {
	return time.Duration(c.Cache.TimeoutMs) * time.Millisecond
}

// RefreshTimeout bounds a synchronous refresh: every fetch attempt at its full timeout, the
// longest backoff between attempts, and one request budget for the reconcile write.
func (c Config) RefreshTimeout() time.Duration {
	retries := c.Dataset.MaxRetries
	if retries < 0 {
		retries = 0
	}
	fetch := time.Duration(retries+1) * c.FetchTimeout()
	backoff := time.Duration(retries) * time.Duration(c.Dataset.BackoffMaxMs) * time.Millisecond
	return fetch + backoff + c.RequestTimeout()
}
