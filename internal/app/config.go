package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the marketsync engine.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig sizes the in-memory cache and its persisted snapshot.
type CacheConfig struct {
	DefaultTTL        time.Duration `mapstructure:"default_ttl"`
	MaxSizeBytes      int64         `mapstructure:"max_size_bytes"`
	MaxEntries        int           `mapstructure:"max_entries"`
	Compression       bool          `mapstructure:"compression"`
	Encryption        bool          `mapstructure:"encryption"`
	EncryptionKey     string        `mapstructure:"encryption_key"`
	SchemaVersion     int           `mapstructure:"schema_version"`
	SweepSchedule     string        `mapstructure:"sweep_schedule"`
	PersistQuotaBytes int           `mapstructure:"persist_quota_bytes"`
}

// SyncConfig controls the write-behind queue.
type SyncConfig struct {
	RetryCeiling            int    `mapstructure:"retry_ceiling"`
	DeadLetter              bool   `mapstructure:"dead_letter"`
	Interval                string `mapstructure:"interval"`
	DeadLetterRetentionDays int    `mapstructure:"dead_letter_retention_days"`
}

// RemoteConfig points at the REST API that receives queued mutations.
type RemoteConfig struct {
	BaseURL        string               `mapstructure:"base_url"`
	Token          string               `mapstructure:"token"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	HealthPath     string               `mapstructure:"health_path"`
	ProbeInterval  string               `mapstructure:"probe_interval"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the breaker guarding the remote.
type CircuitBreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled         bool  `mapstructure:"enabled"`
	BacklogWarnSize int64 `mapstructure:"backlog_warn_size"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("MARKETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/marketsync.sqlite")

	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.max_size_bytes", 50<<20)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.compression", false)
	v.SetDefault("cache.encryption", false)
	v.SetDefault("cache.schema_version", 1)
	v.SetDefault("cache.sweep_schedule", "@every 1m")
	v.SetDefault("cache.persist_quota_bytes", 0)

	v.SetDefault("sync.retry_ceiling", 3)
	v.SetDefault("sync.dead_letter", false)
	v.SetDefault("sync.interval", "@every 5m")
	v.SetDefault("sync.dead_letter_retention_days", 30)

	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.timeout", "15s")
	v.SetDefault("remote.health_path", "/health")
	v.SetDefault("remote.probe_interval", "@every 30s")
	v.SetDefault("remote.circuit_breaker.failure_threshold", 5)
	v.SetDefault("remote.circuit_breaker.success_threshold", 2)
	v.SetDefault("remote.circuit_breaker.timeout", "30s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
	v.SetDefault("monitoring.health_check.backlog_warn_size", 500)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
