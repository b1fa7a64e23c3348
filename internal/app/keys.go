package app

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/marketsync/pkg/crypto"
)

const cacheKeyPurpose = "marketsync-cache"

// DecodeKey reads a configured key as hex, then standard or raw base64. Input matching none of
// those is used as raw bytes.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errors.New("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		if decoded, err := enc.DecodeString(v); err == nil {
			return decoded, nil
		}
	}
	return []byte(v), nil
}

// ResolveEncryptionKey turns a configured key into AES key material. Keys that decode to a
// valid AES length are used as is; anything else is stretched with argon2id.
func ResolveEncryptionKey(value string) ([]byte, error) {
	raw, err := DecodeKey(value)
	if err != nil {
		return nil, fmt.Errorf("cache encryption key: %w", err)
	}
	switch len(raw) {
	case 16, 24, 32:
		return raw, nil
	}
	return crypto.DeriveKey(raw, cacheKeyPurpose)
}
