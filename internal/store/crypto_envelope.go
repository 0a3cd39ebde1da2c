package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/util/memzero"
)

// sealedKeysVersion is the format of identity_keys.private_sealed.
const sealedKeysVersion = 2

const keyRecordLabel = "pqchat|keys|v2"

// ErrWrongPassphrase is returned when the passphrase is incorrect or the
// key record has been modified or moved to another user.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted key record")

// sealedKeys is the stored form of a user's private key halves.
type sealedKeys struct {
	V     int    `json:"v"`
	Salt  []byte `json:"salt"`
	N     int    `json:"scrypt_n"`
	R     int    `json:"scrypt_r"`
	P     int    `json:"scrypt_p"`
	Nonce []byte `json:"nonce"`
	Box   []byte `json:"box"`
}

// kdfParams are the scrypt cost parameters for new records.
type kdfParams struct{ n, r, p int }

func defaultKDF() kdfParams { return kdfParams{n: 1 << 15, r: 8, p: 1} }

// recordBinding is the associated data of a sealed record. It ties the
// private halves to the user id and public keys stored beside them.
func recordBinding(user domain.UserID, encapsulationPublic, signingPublic []byte) []byte {
	return crypto.Digest([]byte(keyRecordLabel), []byte(user), encapsulationPublic, signingPublic)
}

// sealPrivate encrypts raw under a key derived from passphrase with a fresh
// salt and nonce.
func sealPrivate(passphrase string, kdf kdfParams, binding, raw []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := passphraseAEAD(passphrase, salt, kdf)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return json.Marshal(sealedKeys{
		V:     sealedKeysVersion,
		Salt:  salt,
		N:     kdf.n,
		R:     kdf.r,
		P:     kdf.p,
		Nonce: nonce,
		Box:   aead.Seal(nil, nonce, raw, binding),
	})
}

// openPrivate reverses sealPrivate. Any authentication failure, including a
// binding mismatch, is ErrWrongPassphrase.
func openPrivate(passphrase string, binding, b []byte) ([]byte, error) {
	var sk sealedKeys
	if err := json.Unmarshal(b, &sk); err != nil {
		return nil, fmt.Errorf("decode key record: %w", err)
	}
	if sk.V != sealedKeysVersion {
		return nil, fmt.Errorf("unsupported key record version %d", sk.V)
	}
	aead, err := passphraseAEAD(passphrase, sk.Salt, kdfParams{n: sk.N, r: sk.R, p: sk.P})
	if err != nil {
		return nil, err
	}
	if len(sk.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	pt, err := aead.Open(nil, sk.Nonce, sk.Box, binding)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

func passphraseAEAD(passphrase string, salt []byte, kdf kdfParams) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, kdf.n, kdf.r, kdf.p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer memzero.Zero(key)
	return chacha20poly1305.NewX(key)
}
