package interfaces

import (
	"context"

	domaintypes "pqchat/internal/domain/types"
)

// DirectoryClient talks to the public-key directory, all with context.
type DirectoryClient interface {
	PublishKeys(ctx context.Context, user domaintypes.UserID, doc domaintypes.KeysDocument) error
	FetchPeerKeys(ctx context.Context, peer domaintypes.UserID) (domaintypes.KeysDocument, error)
	FetchPresence(ctx context.Context, peer domaintypes.UserID) (domaintypes.PresenceDocument, error)
}

// HistoryClient fetches the server-held history of a conversation.
type HistoryClient interface {
	FetchMessages(ctx context.Context, peer domaintypes.UserID) ([]domaintypes.RemoteMessage, error)
}
