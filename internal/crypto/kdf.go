package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// DeriveKey expands a KEM shared secret into an AEAD key with HKDF-SHA256.
func DeriveKey(sharedSecret, salt, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, sharedSecret, salt, info)
	key := make([]byte, AEADKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Digest returns SHA3-256 over a length-prefixed encoding of parts, so that
// no two distinct part lists share an encoding.
func Digest(parts ...[]byte) []byte {
	h := sha3.New256()
	var n [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return h.Sum(nil)
}
