package domain

import (
	interfaces "pqchat/internal/domain/interfaces"
	types "pqchat/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID           = types.UserID
	Fingerprint      = types.Fingerprint
	ConversationID   = types.ConversationID
	IdentityKeys     = types.IdentityKeys
	PublicKeys       = types.PublicKeys
	PeerKeyRecord    = types.PeerKeyRecord
	KeysDocument     = types.KeysDocument
	PresenceDocument = types.PresenceDocument
	Verification     = types.Verification
	Origin           = types.Origin
	SealedPayload    = types.SealedPayload
	Opened           = types.Opened
	Message          = types.Message
	WireEnvelope     = types.WireEnvelope
	RemoteMessage    = types.RemoteMessage
	ConnectionState  = types.ConnectionState
	Status           = types.Status
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityService = interfaces.IdentityService
	KeyVault        = interfaces.KeyVault
	PeerDirectory   = interfaces.PeerDirectory
	CryptoProtocol  = interfaces.CryptoProtocol
	DirectoryClient = interfaces.DirectoryClient
	HistoryClient   = interfaces.HistoryClient
	KeyStore        = interfaces.KeyStore
	LegacyKeyStore  = interfaces.LegacyKeyStore
	MessageLog      = interfaces.MessageLog
)

// Re-exported constants and helpers.
const (
	VerificationUnknown = types.VerificationUnknown
	VerificationValid   = types.VerificationValid
	VerificationInvalid = types.VerificationInvalid

	OriginLocal  = types.OriginLocal
	OriginRemote = types.OriginRemote

	StateIdle         = types.StateIdle
	StateConnecting   = types.StateConnecting
	StateOpen         = types.StateOpen
	StateClosing      = types.StateClosing
	StateClosed       = types.StateClosed
	StateReconnecting = types.StateReconnecting

	PlaceholderDecryptFailed = types.PlaceholderDecryptFailed
	PlaceholderUnreadable    = types.PlaceholderUnreadable

	EnvelopeTypeEncrypted = types.EnvelopeTypeEncrypted
	MessageTypeEncrypted  = types.MessageTypeEncrypted
	MessageTypePlaintext  = types.MessageTypePlaintext
)

var (
	NewConversationID = types.NewConversationID
	NewWireEnvelope   = types.NewWireEnvelope
	Verified          = types.Verified
	MessageTime       = types.MessageTime
)
