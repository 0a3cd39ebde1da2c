// Package store provides local persistence for pqchat.
//
// A single SQLite database (DB) under the user's home holds two tables:
//   - identity_keys: one row per local user (KeyStore). Public halves are
//     stored as-is; private halves are sealed with a passphrase-derived key
//     (scrypt + ChaCha20-Poly1305).
//   - messages: the append-only per-conversation log (MessageStore), with
//     plaintext and ciphertext fingerprints for duplicate detection.
//
// LegacyKeyFile reads the flat key-value JSON file written by older clients
// so the vault can migrate those keys into the database.
//
// All types are safe for concurrent use.
package store
