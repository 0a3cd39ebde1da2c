// Package identity manages creation and publication of the local identity.
//
// It enforces passphrase policy, generates ML-KEM-1024 and ML-DSA-65 key
// pairs, persists them through the domain.KeyVault and uploads the public
// halves to the directory.
package identity
