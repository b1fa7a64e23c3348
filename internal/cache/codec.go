package cache

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/charlesng35/marketsync/pkg/crypto"
)

// Encoder and decoder are safe for concurrent use and reused across calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

// Codec serializes values as JSON, then optionally compresses with zstd and seals with AES-GCM.
// Decode reverses the pipeline byte for byte.
type Codec struct {
	compress bool
	key      []byte
}

// NewCodec validates the encryption key length when one is supplied.
func NewCodec(compress bool, key []byte) (*Codec, error) {
	if len(key) > 0 {
		switch len(key) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("cache: encryption key must be 16, 24, or 32 bytes, got %d", len(key))
		}
	}
	return &Codec{compress: compress, key: append([]byte(nil), key...)}, nil
}

// Name identifies the pipeline; persisted snapshots written by a different pipeline are discarded.
func (c *Codec) Name() string {
	parts := []string{"json"}
	if c.compress {
		parts = append(parts, "zstd")
	}
	if len(c.key) > 0 {
		parts = append(parts, "aesgcm")
	}
	return strings.Join(parts, "+")
}

// Marshal encodes v into its stored form.
func (c *Codec) Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cache: marshal: %w", err)
	}
	return c.Encode(raw)
}

// Unmarshal decodes a stored payload into v.
func (c *Codec) Unmarshal(data []byte, v any) error {
	raw, err := c.Decode(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("cache: unmarshal: %w", err)
	}
	return nil
}

// Encode applies compression and encryption to already serialized bytes.
func (c *Codec) Encode(raw []byte) ([]byte, error) {
	out := raw
	if c.compress {
		out = zstdEncoder.EncodeAll(out, make([]byte, 0, len(out)))
	}
	if len(c.key) > 0 {
		sealed, err := crypto.Seal(out, c.key)
		if err != nil {
			return nil, fmt.Errorf("cache: seal: %w", err)
		}
		out = sealed
	}
	return out, nil
}

// Decode reverses Encode.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	out := data
	if len(c.key) > 0 {
		opened, err := crypto.Open(out, c.key)
		if err != nil {
			return nil, fmt.Errorf("cache: open: %w", err)
		}
		out = opened
	}
	if c.compress {
		decoded, err := zstdDecoder.DecodeAll(out, nil)
		if err != nil {
			return nil, fmt.Errorf("cache: decompress: %w", err)
		}
		out = decoded
	}
	return out, nil
}
