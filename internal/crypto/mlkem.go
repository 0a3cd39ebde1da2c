package crypto

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
)

var (
	// ErrInvalidEncapsulationKey is returned for keys that do not unpack as ML-KEM-1024.
	ErrInvalidEncapsulationKey = errors.New("mlkem: invalid key")
	// ErrInvalidEncapsulationCiphertext is returned for ciphertexts of the wrong size.
	ErrInvalidEncapsulationCiphertext = errors.New("mlkem: invalid ciphertext")
)

func kemScheme() kem.Scheme { return mlkem1024.Scheme() }

// GenerateMLKEM returns a new ML-KEM-1024 keypair in packed form.
func GenerateMLKEM() (pub, priv []byte, err error) {
	pk, sk, err := kemScheme().GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("mlkem keygen: %w", err)
	}
	if pub, err = pk.MarshalBinary(); err != nil {
		return nil, nil, err
	}
	if priv, err = sk.MarshalBinary(); err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// Encapsulate produces a fresh shared secret bound to the packed public key pub.
func Encapsulate(pub []byte) (ciphertext, sharedSecret []byte, err error) {
	pk, err := kemScheme().UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEncapsulationKey, err)
	}
	return kemScheme().Encapsulate(pk)
}

// Decapsulate recovers the shared secret for ciphertext using the packed private key.
//
// ML-KEM uses implicit rejection: a tampered ciphertext of the correct size
// yields an unrelated secret rather than an error, so callers detect
// tampering at the AEAD layer.
func Decapsulate(priv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != mlkem1024.CiphertextSize {
		return nil, ErrInvalidEncapsulationCiphertext
	}
	sk, err := kemScheme().UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncapsulationKey, err)
	}
	return kemScheme().Decapsulate(sk, ciphertext)
}

// ValidateMLKEMPublic reports whether pub unpacks as an ML-KEM-1024 public key.
func ValidateMLKEMPublic(pub []byte) error {
	if _, err := kemScheme().UnmarshalBinaryPublicKey(pub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncapsulationKey, err)
	}
	return nil
}

// ValidateMLKEMPrivate reports whether priv unpacks as an ML-KEM-1024 private key.
func ValidateMLKEMPrivate(priv []byte) error {
	if _, err := kemScheme().UnmarshalBinaryPrivateKey(priv); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncapsulationKey, err)
	}
	return nil
}
