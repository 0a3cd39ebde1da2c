package types

import (
	"sort"
	"strings"
)

// UserID identifies a user on the chat server.
type UserID string

// String returns the string form of the user identifier.
func (u UserID) String() string { return string(u) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// ConversationID identifies a two-party message thread.
type ConversationID string

// String returns the string form of the conversation identifier.
func (id ConversationID) String() string { return string(id) }

// NewConversationID derives the conversation identifier shared by a and b.
// Both participants compute the same value regardless of argument order.
func NewConversationID(a, b UserID) ConversationID {
	ids := []string{string(a), string(b)}
	sort.Strings(ids)
	return ConversationID(strings.Join(ids, "_"))
}
