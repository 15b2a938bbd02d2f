package digest

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrAuthFailure is returned by Open when the ciphertext fails
// authentication — wrong key, tampered data, or mismatched associated
// data. The caller must not attempt to recover a plaintext from it.
var ErrAuthFailure = errors.New("digest: authentication failure")

// KeySize is the required length, in bytes, of an AEAD key.
const KeySize = 32

// NonceSize is the length of the random nonce prepended to every
// ciphertext.
const NonceSize = 12

// Codec seals and opens data with a single symmetric AEAD key, built
// directly on crypto/aes and crypto/cipher (AES-GCM).
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from a 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("digest: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("digest: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("digest: new gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Seal encrypts plaintext, authenticating associatedData, and returns
// nonce||ciphertext. A fresh random nonce is generated on every call.
func (c *Codec) Seal(plaintext, associatedData []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("digest: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

// Open decrypts data produced by Seal, verifying associatedData. Returns
// ErrAuthFailure on any tamper, wrong-key, or truncation condition.
func (c *Codec) Open(data, associatedData []byte) ([]byte, error) {
	if len(data) < NonceSize {
		return nil, ErrAuthFailure
	}
	nonce, ciphertext := data[:NonceSize], data[NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return plaintext, nil
}
