package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const cacheKeyBytes = 32

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if cfg.Cache.Encryption && strings.TrimSpace(cfg.Cache.EncryptionKey) == "" {
		secret, err := generateHexKey(cacheKeyBytes)
		if err != nil {
			return nil, fmt.Errorf("generate cache encryption key: %w", err)
		}
		cfg.Cache.EncryptionKey = secret
		generated["cache.encryption_key"] = true
	}

	return generated, nil
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
