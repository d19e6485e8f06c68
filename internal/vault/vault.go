// Package vault encrypts long-lived provider credentials at rest with
// AES-256-GCM.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length in bytes.
	IVSize = 16
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16

	separator = ":"
)

// ErrDecryptionFailed is returned for any secret that cannot be opened:
// malformed format, bad tag or a different key.
var ErrDecryptionFailed = errors.New("decryption failed")

// ConfigError reports unusable key material. It is fatal at startup.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "token encryption key: " + e.Reason
}

// Vault seals and opens secrets in the "<ivHex>:<tagHex>:<ciphertextHex>"
// format. It is safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
	rand io.Reader
}

// New creates a Vault from a 64-character hex key.
func New(hexKey string) (*Vault, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, &ConfigError{Reason: "not set"}
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, &ConfigError{Reason: "not valid hex"}
	}
	if len(key) != KeySize {
		return nil, &ConfigError{Reason: fmt.Sprintf("must be %d bytes (%d hex characters), got %d bytes", KeySize, KeySize*2, len(key))}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Vault{aead: aead, rand: rand.Reader}, nil
}

// Encrypt seals plaintext under a fresh random IV. Empty input yields "".
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(v.rand, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := v.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return hex.EncodeToString(iv) + separator +
		hex.EncodeToString(tag) + separator +
		hex.EncodeToString(ct), nil
}

// Decrypt opens a secret produced by Encrypt. Empty input yields "". Every
// failure wraps ErrDecryptionFailed and returns no plaintext.
func (v *Vault) Decrypt(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}

	parts := strings.Split(secret, separator)
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: want 3 fields, got %d", ErrDecryptionFailed, len(parts))
	}

	iv, err := decodeField(parts[0], IVSize)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", ErrDecryptionFailed, err)
	}
	tag, err := decodeField(parts[1], TagSize)
	if err != nil {
		return "", fmt.Errorf("%w: tag: %v", ErrDecryptionFailed, err)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: not hex", ErrDecryptionFailed)
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := v.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

func decodeField(s string, size int) ([]byte, error) {
	if len(s) != size*2 {
		return nil, fmt.Errorf("want %d hex characters, got %d", size*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.New("not hex")
	}
	return b, nil
}

// GenerateKey returns 32 random bytes, hex encoded, for provisioning
// TOKEN_ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
