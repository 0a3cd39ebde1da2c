// Package sealed implements the per-message protocol: each message is
// encapsulated to the recipient's ML-KEM-1024 key, encrypted with AES-256-GCM
// under a key derived from the shared secret, and signed with the sender's
// ML-DSA-65 key.
//
// Seal and Open are the signed pair. EncryptOnly and DecryptOnly skip the
// signature and are used when no signing key is available; their results
// must be shown as unverified.
//
// The signature covers a SHA3-256 digest of the encapsulation ciphertext and
// the plaintext, so a signature cannot be replayed onto another ciphertext.
//
// Protocol wraps the functions for callers holding a context: the CPU-bound
// work runs on its own goroutine and its result is discarded if the context
// ends first.
package sealed
