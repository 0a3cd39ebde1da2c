package interfaces

import (
	"context"
	"time"

	domaintypes "pqchat/internal/domain/types"
)

// KeyStore is the durable, structured store of local identity keys.
type KeyStore interface {
	SaveKeys(ctx context.Context, keys domaintypes.IdentityKeys) error
	LoadKeys(ctx context.Context, user domaintypes.UserID) (domaintypes.IdentityKeys, bool, error)
}

// LegacyKeyStore reads keys written by older clients to a flat key-value file.
type LegacyKeyStore interface {
	LoadLegacyKeys() (domaintypes.IdentityKeys, bool, error)
}

// MessageLog is the append-only per-conversation message store.
type MessageLog interface {
	Append(ctx context.Context, msg domaintypes.Message) error
	List(ctx context.Context, conv domaintypes.ConversationID) ([]domaintypes.Message, error)
	Exists(
		ctx context.Context,
		conv domaintypes.ConversationID,
		ts time.Time,
		sender domaintypes.UserID,
		fingerprint string,
	) (bool, error)
	HasCipher(ctx context.Context, conv domaintypes.ConversationID, fingerprint string) (bool, error)
	HasRemote(ctx context.Context, conv domaintypes.ConversationID, remoteID string) (bool, error)
	AttachRemoteID(ctx context.Context, localID, remoteID string) error
}
