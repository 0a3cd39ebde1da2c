package types

// KeysDocument is the JSON body served by GET /peer/{id}/keys.
//
// Field names keep the directory's historical algorithm names: "kyber" is
// the ML-KEM encapsulation key and "dilithium" the ML-DSA verification key.
type KeysDocument struct {
	KyberPublicKey     string `json:"kyber_public_key"`
	DilithiumPublicKey string `json:"dilithium_public_key"`
}

// PresenceDocument is the JSON body served by GET /peer/{id}/status.
type PresenceDocument struct {
	IsOnline bool `json:"isOnline"`
}
