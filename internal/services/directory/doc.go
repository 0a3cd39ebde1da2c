// Package directory resolves peer identifiers to their public ML-KEM and
// ML-DSA keys and reports peer presence.
package directory
