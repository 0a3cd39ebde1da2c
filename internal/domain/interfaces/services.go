package interfaces

import (
	"context"

	domaintypes "pqchat/internal/domain/types"
)

// IdentityService creates, publishes and inspects the local identity.
type IdentityService interface {
	Generate(ctx context.Context, user domaintypes.UserID) (
		domaintypes.IdentityKeys,
		domaintypes.Fingerprint,
		error,
	)
	Fingerprint(ctx context.Context, user domaintypes.UserID) (domaintypes.Fingerprint, error)
	Publish(ctx context.Context, user domaintypes.UserID) error
}

// KeyVault loads and stores the local identity keys.
type KeyVault interface {
	Load(ctx context.Context, user domaintypes.UserID) (domaintypes.IdentityKeys, error)
	Store(ctx context.Context, keys domaintypes.IdentityKeys) error
}

// PeerDirectory resolves peers to their current public keys.
type PeerDirectory interface {
	Resolve(ctx context.Context, peer domaintypes.UserID) (domaintypes.PeerKeyRecord, error)
	Cached(peer domaintypes.UserID) (domaintypes.PeerKeyRecord, bool)
	Invalidate(peer domaintypes.UserID)
	Presence(ctx context.Context, peer domaintypes.UserID) bool
}

// CryptoProtocol seals and opens individual messages.
type CryptoProtocol interface {
	Seal(
		ctx context.Context,
		peerEncapsulationPublic []byte,
		plaintext string,
		signingPrivate []byte,
	) (domaintypes.SealedPayload, error)
	Open(
		ctx context.Context,
		encapsulationPrivate []byte,
		payload domaintypes.SealedPayload,
		peerSigningPublic []byte,
	) (domaintypes.Opened, error)
	EncryptOnly(
		ctx context.Context,
		peerEncapsulationPublic []byte,
		plaintext string,
	) (domaintypes.SealedPayload, error)
	DecryptOnly(
		ctx context.Context,
		encapsulationPrivate []byte,
		payload domaintypes.SealedPayload,
	) (string, error)
}
