package crypto

import (
	"encoding/hex"
	"strings"
)

const fingerprintLabel = "pqchat|fingerprint|v1"

// Fingerprint identifies an identity by both of its public keys. It is the
// first 10 bytes of a labelled SHA3-256 digest, printed as five groups of
// four hex digits.
func Fingerprint(encapsulationPublic, signingPublic []byte) string {
	sum := Digest([]byte(fingerprintLabel), encapsulationPublic, signingPublic)
	h := hex.EncodeToString(sum[:10])

	var b strings.Builder
	for i := 0; i < len(h); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(h[i : i+4])
	}
	return b.String()
}
