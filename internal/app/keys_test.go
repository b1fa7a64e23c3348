package app

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{name: "hex", input: hex.EncodeToString(raw), want: raw},
		{name: "base64", input: base64.StdEncoding.EncodeToString(raw), want: raw},
		{name: "raw base64", input: base64.RawStdEncoding.EncodeToString(raw[:31]), want: raw[:31]},
		{name: "passphrase", input: "  cache passphrase  ", want: []byte("cache passphrase")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeKey(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := DecodeKey("   ")
	require.Error(t, err)
}
