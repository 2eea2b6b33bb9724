package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// APIKeyPrefix marks every key this server issues; the logger redacts
// anything matching it.
const APIKeyPrefix = "sk-mcpo-"

// GenerateAPIKey returns a fresh plain-text API key.
func GenerateAPIKey() string {
	return APIKeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// KeyCipher encrypts API keys at rest with AES-256-GCM. The key material
// is derived from API_KEY_ENCRYPTION_KEY by SHA-256, so any passphrase
// length works.
type KeyCipher struct {
	aead cipher.AEAD
}

// NewKeyCipher derives the cipher from the configured passphrase.
func NewKeyCipher(passphrase string) (*KeyCipher, error) {
	sum := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &KeyCipher{aead: aead}, nil
}

// Encrypt seals a plain-text key for storage.
func (c *KeyCipher) Encrypt(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored key.
func (c *KeyCipher) Decrypt(stored string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", err
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("stored key too short")
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Matches reports whether the presented plain key equals any of the
// stored encrypted keys.
func (c *KeyCipher) Matches(presented string, stored []string) bool {
	for _, enc := range stored {
		plain, err := c.Decrypt(enc)
		if err != nil {
			continue
		}
		if plain == presented {
			return true
		}
	}
	return false
}
