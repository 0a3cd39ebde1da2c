// Package commands defines the pqchat CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init           Create the local identity (ML-KEM-1024 + ML-DSA-65)
//   - fingerprint    Print your fingerprint, or a peer's published one
//   - register       Publish your public keys to the server
//   - history        Merge server history and print a conversation
//   - send           Seal and send one message over the live channel
//   - chat           Interactive session with live status and presence
//
// # Configuration
//
// Settings are layered: built-in defaults, then <home>/config.toml (or
// --config), then PQCHAT_* environment variables, then flags. The passphrase
// only ever comes from -p or PQCHAT_PASSPHRASE.
//
// # Implementation
//
// The root command builds the app.Wire (SQLite store, key vault, directory,
// reconciler, relay client) before any subcommand runs and closes it after.
package commands
