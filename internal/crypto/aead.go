package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
)

const (
	// AEADKeySize is the AES-256 key length.
	AEADKeySize = 32
	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12
)

var (
	// ErrAuthenticationFailed is returned when the GCM tag does not match.
	ErrAuthenticationFailed = errors.New("aead: authentication failed")
	// ErrInvalidNonce is returned for nonces of the wrong length.
	ErrInvalidNonce = errors.New("aead: invalid nonce size")
	// ErrInvalidKeySize is returned for keys that are not 32 bytes.
	ErrInvalidKeySize = errors.New("aead: invalid key size")
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != AEADKeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// NewNonce returns a fresh random GCM nonce.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

// SealAEAD encrypts plaintext with AES-256-GCM under key and nonce.
func SealAEAD(key, nonce, plaintext, ad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrInvalidNonce
	}
	return aead.Seal(nil, nonce, plaintext, ad), nil
}

// OpenAEAD decrypts and authenticates ciphertext. No plaintext is returned on failure.
func OpenAEAD(key, nonce, ciphertext, ad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrInvalidNonce
	}
	pt, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return pt, nil
}
