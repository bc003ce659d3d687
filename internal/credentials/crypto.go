package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Gate decrypts stored mailbox credentials with a shared AES-256 secret.
// Ciphertext and nonce are stored base64-encoded, nonce separate from the
// sealed payload.
type Gate struct {
	secret []byte
}

// NewGate validates the shared secret and returns a credential gate. The
// secret must be exactly 32 bytes (AES-256).
func NewGate(secret string) (*Gate, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("credential secret must be exactly 32 bytes, got %d", len(secret))
	}
	return &Gate{secret: []byte(secret)}, nil
}

// Decrypt opens a sealed credential given its base64 ciphertext and nonce.
func (g *Gate) Decrypt(ciphertextB64, nonceB64 string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode nonce: %w", err)
	}

	gcm, err := g.aead()
	if err != nil {
		return "", err
	}

	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("invalid nonce length: %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}

	return string(plaintext), nil
}

// Encrypt seals a credential, returning base64 ciphertext and nonce. Used by
// configuration tooling when registering an identity.
func (g *Gate) Encrypt(plaintext string) (ciphertextB64, nonceB64 string, err error) {
	gcm, err := g.aead()
	if err != nil {
		return "", "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(nonce), nil
}

func (g *Gate) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}
