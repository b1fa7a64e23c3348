package app

import (
	"strings"
	"testing"
)

func TestApplyRuntimeDefaultsGeneratesCacheKey(t *testing.T) {
	cfg := &Config{}
	cfg.Cache.Encryption = true

	generated, err := ApplyRuntimeDefaults(cfg)
	if err != nil {
		t.Fatalf("ApplyRuntimeDefaults returned error: %v", err)
	}

	if len(cfg.Cache.EncryptionKey) != cacheKeyBytes*2 {
		t.Fatalf("expected hex cache key, got %q", cfg.Cache.EncryptionKey)
	}
	if !generated["cache.encryption_key"] {
		t.Fatalf("expected generated map to include cache key: %#v", generated)
	}
}

func TestApplyRuntimeDefaultsSkipsDisabledEncryption(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	if err != nil {
		t.Fatalf("ApplyRuntimeDefaults returned error: %v", err)
	}
	if cfg.Cache.EncryptionKey != "" || len(generated) != 0 {
		t.Fatalf("did not expect a key without encryption: %#v", generated)
	}
}

func TestApplyRuntimeDefaultsPreservesExistingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Cache.Encryption = true
	cfg.Cache.EncryptionKey = strings.Repeat("b", 10)

	generated, err := ApplyRuntimeDefaults(cfg)
	if err != nil {
		t.Fatalf("ApplyRuntimeDefaults returned error: %v", err)
	}

	if len(generated) != 0 {
		t.Fatalf("expected no keys generated, got %#v", generated)
	}
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	if err == nil || !strings.Contains(err.Error(), "config is nil") {
		t.Fatalf("expected nil config error, got %v", err)
	}
}

func TestGenerateHexKey(t *testing.T) {
	key, err := generateHexKey(4)
	if err != nil {
		t.Fatalf("generateHexKey returned error: %v", err)
	}
	if len(key) != 8 {
		t.Fatalf("expected encoded length 8, got %d", len(key))
	}

	if _, err = generateHexKey(0); err == nil {
		t.Fatal("expected error when length <= 0")
	}
}
