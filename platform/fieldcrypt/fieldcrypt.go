// Package fieldcrypt provides AES-256-GCM encryption for stored contact fields.
// This is part of the platform layer and contains no business logic.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLen     = 32
	iterations = 210_000
)

// Codec encrypts and decrypts short string fields with a key derived from a
// passphrase. The same passphrase and salt always derive the same key, so
// ciphertexts survive process restarts.
type Codec struct {
	key []byte
}

// New derives a 32-byte key from the passphrase via PBKDF2-SHA256.
func New(passphrase, salt string) (*Codec, error) {
	if passphrase == "" {
		return nil, errors.New("fieldcrypt: passphrase is required")
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, keyLen, sha256.New)
	return &Codec{key: key}, nil
}

// Encrypt encrypts plaintext and returns the hex-encoded nonce+ciphertext.
// Empty input round-trips to empty output so optional fields stay optional.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a hex-encoded nonce+ciphertext produced by Encrypt.
func (c *Codec) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}

	data, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("hex decode: %w", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}
