package crypto

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

var (
	// ErrInvalidSigningKey is returned for keys that do not unpack as ML-DSA-65.
	ErrInvalidSigningKey = errors.New("mldsa: invalid key")
	// ErrMalformedSignature is returned for signatures of the wrong size.
	ErrMalformedSignature = errors.New("mldsa: malformed signature")
)

func signScheme() sign.Scheme { return mldsa65.Scheme() }

// GenerateMLDSA returns a new ML-DSA-65 keypair in packed form.
func GenerateMLDSA() (pub, priv []byte, err error) {
	pk, sk, err := signScheme().GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("mldsa keygen: %w", err)
	}
	if pub, err = pk.MarshalBinary(); err != nil {
		return nil, nil, err
	}
	if priv, err = sk.MarshalBinary(); err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// Sign signs msg with the packed private key priv.
func Sign(priv, msg []byte) ([]byte, error) {
	sk, err := signScheme().UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSigningKey, err)
	}
	return signScheme().Sign(sk, msg, nil), nil
}

// Verify checks sig over msg with the packed public key pub. A malformed key or
// signature is reported as an error, distinct from a signature that simply
// does not verify.
func Verify(pub, msg, sig []byte) (bool, error) {
	pk, err := signScheme().UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSigningKey, err)
	}
	if len(sig) != signScheme().SignatureSize() {
		return false, ErrMalformedSignature
	}
	return signScheme().Verify(pk, msg, sig, nil), nil
}

// ValidateMLDSAPublic reports whether pub unpacks as an ML-DSA-65 public key.
func ValidateMLDSAPublic(pub []byte) error {
	if _, err := signScheme().UnmarshalBinaryPublicKey(pub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSigningKey, err)
	}
	return nil
}

// ValidateMLDSAPrivate reports whether priv unpacks as an ML-DSA-65 private key.
func ValidateMLDSAPrivate(priv []byte) error {
	if _, err := signScheme().UnmarshalBinaryPrivateKey(priv); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSigningKey, err)
	}
	return nil
}
