package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGateRoundTrip(t *testing.T) {
	gate, err := NewGate(testSecret)
	require.NoError(t, err)

	ciphertext, nonce, err := gate.Encrypt("imap-app-password")
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)
	require.NotEmpty(t, nonce)

	plaintext, err := gate.Decrypt(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, "imap-app-password", plaintext)
}

func TestNewGateRejectsShortSecret(t *testing.T) {
	_, err := NewGate("too-short")
	assert.Error(t, err)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	gate, err := NewGate(testSecret)
	require.NoError(t, err)

	ciphertext, nonce, err := gate.Encrypt("secret")
	require.NoError(t, err)

	_, err = gate.Decrypt("AAAA"+ciphertext[4:], nonce)
	assert.Error(t, err)
}

func TestDecryptRejectsWrongNonce(t *testing.T) {
	gate, err := NewGate(testSecret)
	require.NoError(t, err)

	ciphertext, _, err := gate.Encrypt("secret")
	require.NoError(t, err)

	_, other, err := gate.Encrypt("unrelated")
	require.NoError(t, err)

	_, err = gate.Decrypt(ciphertext, other)
	assert.Error(t, err)
}
