package types

// Opened is the result of opening a sealed payload.
type Opened struct {
	Plaintext         string
	SignatureVerified Verification
}
