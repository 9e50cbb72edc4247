// Package secretbox encrypts tenant-owned secrets at rest with AES-256-GCM.
//
// Ciphertext format: base64(nonce)|base64(ciphertext). The master key is
// supplied at construction (config/env), never read ambiently, so tests can
// run with throwaway keys.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nonceSizeGCM      = 12 // AES-GCM recommended nonce size (96 bits)
	requiredKeyLength = 32 // 32 bytes => AES-256
	sep               = "|"
)

var (
	// ErrBadKey indicates the master key does not decode to 32 bytes.
	ErrBadKey = errors.New("secretbox: master key must decode to 32 bytes")

	// ErrBadCiphertext indicates the ciphertext is malformed or fails
	// authentication. The detail is deliberately not split further: a caller
	// must not be able to distinguish tampering from corruption.
	ErrBadCiphertext = errors.New("secretbox: cannot decrypt")
)

// Cipher seals and opens small secrets with a fixed master key.
type Cipher struct {
	key []byte
}

// New builds a Cipher from a base64-encoded 32-byte master key.
// Generate one with: openssl rand -base64 32
func New(masterKeyB64 string) (*Cipher, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(masterKeyB64))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	if len(raw) != requiredKeyLength {
		return nil, fmt.Errorf("%w: got %d", ErrBadKey, len(raw))
	}
	key := make([]byte, requiredKeyLength)
	copy(key, raw)
	return &Cipher{key: key}, nil
}

// Encrypt seals plainText and returns base64(nonce)|base64(ciphertext).
func (c *Cipher) Encrypt(plainText string) (string, error) {
	aesgcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}

	ct := aesgcm.Seal(nil, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt opens base64(nonce)|base64(ciphertext) and returns the plaintext.
func (c *Cipher) Decrypt(cipherText string) (string, error) {
	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", ErrBadCiphertext
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSizeGCM {
		return "", ErrBadCiphertext
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrBadCiphertext
	}

	aesgcm, err := c.gcm()
	if err != nil {
		return "", err
	}
	pt, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrBadCiphertext
	}
	return string(pt), nil
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	return cipher.NewGCM(block)
}
