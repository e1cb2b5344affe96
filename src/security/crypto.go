package security

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// CredentialSealer encrypts exchange API credentials before they are stored.
// The nonce is prepended to the ciphertext so a sealed blob is self-contained.
type CredentialSealer struct {
	key []byte
}

func NewCredentialSealer(key []byte) (*CredentialSealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credential seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &CredentialSealer{key: key}, nil
}

func (s *CredentialSealer) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *CredentialSealer) Open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("sealed credential blob too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}
