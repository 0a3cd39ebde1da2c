// Package chat runs a conversation with one peer: it merges history on
// activation, seals outgoing text, opens inbound frames and keeps the
// timeline in order.
package chat
