package app

import (
	"strings"

	"github.com/charlesng35/marketsync/internal/cache"
	"github.com/charlesng35/marketsync/internal/circuitbreaker"
	"github.com/charlesng35/marketsync/internal/database"
	"github.com/charlesng35/marketsync/internal/engine"
	"github.com/charlesng35/marketsync/internal/syncqueue"
)

// DatabaseConfig converts the database section into the database package representation.
func (c DatabaseConfig) DatabaseConfig() database.Config {
	dbCfg := database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var auth DBAuthConfig
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "postgres", "postgresql":
		auth = c.Postgres
	case "mysql", "mariadb":
		auth = c.MySQL
	}
	if auth.Enabled {
		dbCfg.Host = auth.Host
		dbCfg.Port = auth.Port
		dbCfg.Name = auth.Database
		dbCfg.User = auth.Username
		dbCfg.Password = auth.Password
	}
	return dbCfg
}

// CacheConfig converts the cache section into a cache.Config, resolving the encryption key.
func (c CacheConfig) CacheConfig() (cache.Config, error) {
	cfg := cache.Config{
		DefaultTTL:    c.DefaultTTL,
		MaxSizeBytes:  c.MaxSizeBytes,
		MaxEntries:    c.MaxEntries,
		Compression:   c.Compression,
		SchemaVersion: c.SchemaVersion,
	}
	if !c.Encryption {
		return cfg, nil
	}

	key, err := ResolveEncryptionKey(c.EncryptionKey)
	if err != nil {
		return cache.Config{}, err
	}
	cfg.EncryptionKey = key
	return cfg, nil
}

// EngineConfig assembles the engine settings from the cache and sync sections.
func (c *Config) EngineConfig() (engine.Config, error) {
	cacheCfg, err := c.Cache.CacheConfig()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Cache:             cacheCfg,
		PersistQuotaBytes: c.Cache.PersistQuotaBytes,
		RetryCeiling:      c.Sync.RetryCeiling,
		DeadLetter:        c.Sync.DeadLetter,
		DrainSchedule:     c.Sync.Interval,
	}, nil
}

// ApplierConfig converts the remote section into the HTTP applier configuration.
func (c RemoteConfig) ApplierConfig() syncqueue.HTTPApplierConfig {
	return syncqueue.HTTPApplierConfig{
		BaseURL:    strings.TrimSpace(c.BaseURL),
		Token:      c.Token,
		Timeout:    c.Timeout,
		HealthPath: c.HealthPath,
		CircuitBreaker: circuitbreaker.Config{
			Name:             "remote",
			FailureThreshold: c.CircuitBreaker.FailureThreshold,
			SuccessThreshold: c.CircuitBreaker.SuccessThreshold,
			Timeout:          c.CircuitBreaker.Timeout,
		},
	}
}

// Enabled reports whether a remote endpoint is configured.
func (c RemoteConfig) Enabled() bool {
	return strings.TrimSpace(c.BaseURL) != ""
}
