// Package crypto exposes the minimal primitives used by pqchat.
//
// Contents
//
//   - ML-KEM-1024 key generation, encapsulation and decapsulation
//     (GenerateMLKEM, Encapsulate, Decapsulate)
//   - ML-DSA-65 key generation, signing and verification (GenerateMLDSA,
//     Sign, Verify)
//   - AES-256-GCM sealing with random nonces (SealAEAD, OpenAEAD, NewNonce)
//   - HKDF-SHA256 key derivation and SHA3-256 canonical digests (DeriveKey,
//     Digest)
//   - Short public-key fingerprints for display (Fingerprint) and content
//     fingerprints for duplicate detection (ContentFingerprint)
//
// # Notes
//
// Keys travel as packed byte slices in the circl encodings. Callers should
// treat shared secrets and derived keys as sensitive and zero them with
// internal/util/memzero once used.
package crypto
