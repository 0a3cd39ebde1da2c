// Package reconcile merges the local message log with the server's history
// feed into one ordered, duplicate-free conversation timeline.
//
// The server never returns plaintext for our own outgoing messages, so those
// come from the local log only. Items that cannot be decrypted still take a
// slot in the timeline as placeholders.
package reconcile
