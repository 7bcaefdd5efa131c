package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Vault encrypts sensitive account fields (face templates, government ID
// numbers) at rest with AES-256-GCM under a key derived from a master secret.
type Vault struct {
	key []byte
}

// Config holds vault configuration.
type Config struct {
	MasterKey string
	Salt      []byte
}

// New derives the field-encryption key and returns a ready Vault.
func New(config Config) (*Vault, error) {
	if config.MasterKey == "" {
		return nil, errors.New("master key required")
	}
	if len(config.Salt) < 16 {
		return nil, errors.New("salt must be at least 16 bytes")
	}

	key := argon2.IDKey([]byte(config.MasterKey), config.Salt, 1, 64*1024, 4, 32)
	return &Vault{key: key}, nil
}

// EncryptField seals plaintext and returns base64(nonce || ciphertext).
func (v *Vault) EncryptField(plaintext []byte) (string, error) {
	nonce := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	result := make([]byte, len(nonce)+len(ciphertext))
	copy(result, nonce)
	copy(result[len(nonce):], ciphertext)

	return base64.StdEncoding.EncodeToString(result), nil
}

// DecryptField reverses EncryptField.
func (v *Vault) DecryptField(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	if len(data) < 13 {
		return nil, errors.New("ciphertext too short")
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, data[:12], data[12:], nil)
	if err != nil {
		return nil, errors.New("decryption failed")
	}

	return plaintext, nil
}
