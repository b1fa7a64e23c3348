package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key := bytes.Repeat([]byte{0x1}, 32)
	plaintext := []byte(`{"name":"Ada"}`)

	sealed, err := Seal(plaintext, key)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	opened, err := Open(sealed, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestSealUsesFreshNonce(t *testing.T) {
	key := bytes.Repeat([]byte{0x2}, 32)

	a, err := Seal([]byte("same"), key)
	require.NoError(t, err)
	b, err := Seal([]byte("same"), key)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestOpenRejectsTamperedAndShortInput(t *testing.T) {
	key := bytes.Repeat([]byte{0x3}, 32)

	sealed, err := Seal([]byte("payload"), key)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = Open(sealed, key)
	require.Error(t, err)

	_, err = Open([]byte{1, 2}, key)
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}
