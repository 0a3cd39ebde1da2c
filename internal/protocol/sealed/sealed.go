package sealed

import (
	"errors"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/util/memzero"
)

var (
	kdfInfo       = []byte("pqchat|seal|key")
	associatedTag = []byte("pqchat|seal|v1")
	signatureTag  = []byte("pqchat|seal|sig")
)

// Seal encapsulates to peerEncapsulationPublic, encrypts plaintext and signs it
// with signingPrivate.
func Seal(
	peerEncapsulationPublic []byte,
	plaintext string,
	signingPrivate []byte,
) (domain.SealedPayload, error) {
	p, err := EncryptOnly(peerEncapsulationPublic, plaintext)
	if err != nil {
		return domain.SealedPayload{}, err
	}
	sig, err := crypto.Sign(signingPrivate, signedDigest(p.EncapsulationCiphertext, plaintext))
	if err != nil {
		return domain.SealedPayload{}, domain.Wrap("seal", "", domain.ErrKeyNotFound, err)
	}
	p.Signature = sig
	return p, nil
}

// EncryptOnly performs the encapsulation and AEAD steps of Seal without signing.
func EncryptOnly(peerEncapsulationPublic []byte, plaintext string) (domain.SealedPayload, error) {
	ct, ss, err := crypto.Encapsulate(peerEncapsulationPublic)
	if err != nil {
		return domain.SealedPayload{}, domain.Wrap("seal", "", domain.ErrKeyNotFound, err)
	}
	defer memzero.Zero(ss)

	key, err := crypto.DeriveKey(ss, nil, kdfInfo)
	if err != nil {
		return domain.SealedPayload{}, err
	}
	defer memzero.Zero(key)

	nonce, err := crypto.NewNonce()
	if err != nil {
		return domain.SealedPayload{}, err
	}
	body, err := crypto.SealAEAD(key, nonce, []byte(plaintext), associatedTag)
	if err != nil {
		return domain.SealedPayload{}, err
	}
	return domain.SealedPayload{
		EncapsulationCiphertext: ct,
		EncryptedPayload:        body,
		Nonce:                   nonce,
	}, nil
}

// Open decrypts p with encapsulationPrivate and, when both a signature and
// peerSigningPublic are present, verifies it.
//
// Decryption failure is an error and yields no plaintext. A signature that
// does not verify, or that cannot be checked because it or the key is
// malformed, yields the plaintext with VerificationInvalid. A missing
// signature or key yields VerificationUnknown.
func Open(
	encapsulationPrivate []byte,
	p domain.SealedPayload,
	peerSigningPublic []byte,
) (domain.Opened, error) {
	pt, err := DecryptOnly(encapsulationPrivate, p)
	if err != nil {
		return domain.Opened{}, err
	}
	return domain.Opened{
		Plaintext:         pt,
		SignatureVerified: verify(peerSigningPublic, p, pt),
	}, nil
}

// DecryptOnly performs the decapsulation and AEAD steps of Open without verification.
func DecryptOnly(encapsulationPrivate []byte, p domain.SealedPayload) (string, error) {
	if p.Empty() {
		return "", domain.NewError("open", "", domain.ErrDecryptionFailure)
	}
	ss, err := crypto.Decapsulate(encapsulationPrivate, p.EncapsulationCiphertext)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidEncapsulationKey) {
			return "", domain.Wrap("open", "", domain.ErrKeyNotFound, err)
		}
		return "", domain.Wrap("open", "", domain.ErrDecryptionFailure, err)
	}
	defer memzero.Zero(ss)

	key, err := crypto.DeriveKey(ss, nil, kdfInfo)
	if err != nil {
		return "", err
	}
	defer memzero.Zero(key)

	pt, err := crypto.OpenAEAD(key, p.Nonce, p.EncryptedPayload, associatedTag)
	if err != nil {
		return "", domain.Wrap("open", "", domain.ErrDecryptionFailure, err)
	}
	return string(pt), nil
}

// Verify checks the signature on an already decrypted payload. It returns
// an error wrapping domain.ErrSignatureVerification unless the signature is valid.
func Verify(peerSigningPublic []byte, p domain.SealedPayload, plaintext string) error {
	ok, err := crypto.Verify(peerSigningPublic, signedDigest(p.EncapsulationCiphertext, plaintext), p.Signature)
	if err != nil {
		return domain.Wrap("verify", "", domain.ErrSignatureVerification, err)
	}
	if !ok {
		return domain.NewError("verify", "", domain.ErrSignatureVerification)
	}
	return nil
}

func verify(peerSigningPublic []byte, p domain.SealedPayload, plaintext string) domain.Verification {
	if len(p.Signature) == 0 || len(peerSigningPublic) == 0 {
		return domain.VerificationUnknown
	}
	return domain.Verified(Verify(peerSigningPublic, p, plaintext) == nil)
}

func signedDigest(encapsulationCiphertext []byte, plaintext string) []byte {
	return crypto.Digest(signatureTag, encapsulationCiphertext, []byte(plaintext))
}
