package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// B64 returns standard base64 encoding without newlines.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// UnB64 decodes standard base64.
func UnB64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// TupleFingerprint returns the hex Digest of parts.
func TupleFingerprint(parts ...[]byte) string {
	return hex.EncodeToString(Digest(parts...))
}

// ContentFingerprint returns the hex SHA-256 of b. It identifies message
// plaintexts and ciphertexts for duplicate detection and is not a key fingerprint.
func ContentFingerprint(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
