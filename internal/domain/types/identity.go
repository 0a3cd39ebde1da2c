package types

import "time"

// IdentityKeys holds the local user's long-term ML-KEM and ML-DSA keypairs in
// packed binary form.
type IdentityKeys struct {
	UserID               UserID `json:"user_id"`
	EncapsulationPublic  []byte `json:"encapsulation_public"`
	EncapsulationPrivate []byte `json:"encapsulation_private"`
	SigningPublic        []byte `json:"signing_public"`
	SigningPrivate       []byte `json:"signing_private"`
}

// Complete reports whether all four key halves are present.
func (k IdentityKeys) Complete() bool {
	return len(k.EncapsulationPublic) > 0 && len(k.EncapsulationPrivate) > 0 &&
		len(k.SigningPublic) > 0 && len(k.SigningPrivate) > 0
}

// Public returns the publishable half of the identity.
func (k IdentityKeys) Public() PublicKeys {
	return PublicKeys{
		EncapsulationPublic: k.EncapsulationPublic,
		SigningPublic:       k.SigningPublic,
	}
}

// PublicKeys is the pair of public keys a user publishes to the directory.
type PublicKeys struct {
	EncapsulationPublic []byte
	SigningPublic       []byte
}

// PeerKeyRecord is a peer's public key material as resolved from the directory.
type PeerKeyRecord struct {
	PeerID              UserID
	EncapsulationPublic []byte
	SigningPublic       []byte
	FetchedAt           time.Time
}
