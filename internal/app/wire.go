package app

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"pqchat/internal/domain"
	"pqchat/internal/logging"
	"pqchat/internal/protocol/sealed"
	"pqchat/internal/relay"
	"pqchat/internal/services/chat"
	"pqchat/internal/services/directory"
	"pqchat/internal/services/identity"
	"pqchat/internal/services/keyvault"
	"pqchat/internal/services/reconcile"
	"pqchat/internal/store"
	"pqchat/internal/transport"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config     Config
	Log        *zap.Logger
	DB         *store.DB
	Messages   *store.MessageStore
	Vault      *keyvault.Service
	Identity   *identity.Service
	Relay      *relay.HTTP
	Directory  *directory.Service
	Protocol   *sealed.Protocol
	Reconciler *reconcile.Service
	HTTP       *http.Client
}

// NewWire constructs the dependency graph from cfg. The caller must Close it.
func NewWire(cfg Config, log *zap.Logger) (*Wire, error) {
	log = logging.OrNop(log)
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("create home: %w", err)
	}

	db, err := store.Open(filepath.Join(cfg.Home, store.DatabaseFilename))
	if err != nil {
		return nil, err
	}

	// Ensure an HTTP client is available for outbound calls
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	rc := relay.NewHTTP(cfg.ServerURL, cfg.BearerToken(), httpClient)

	dir, err := directory.New(rc, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	messages := store.NewMessageStore(db, cfg.DedupTolerance())
	vault := keyvault.New(store.NewKeyStore(db, cfg.Passphrase), store.NewLegacyKeyFile(cfg.Home), log)
	proto := sealed.New(log)

	return &Wire{
		Config:     cfg,
		Log:        log,
		DB:         db,
		Messages:   messages,
		Vault:      vault,
		Identity:   identity.New(vault, rc, log),
		Relay:      rc,
		Directory:  dir,
		Protocol:   proto,
		Reconciler: reconcile.New(messages, rc, proto, messages.Tolerance(), log),
		HTTP:       httpClient,
	}, nil
}

// NewSession returns an inactive chat session with peer over a fresh connection.
func (w *Wire) NewSession(peer domain.UserID) *chat.Session {
	conn := transport.New(
		transport.NewWebSocketDialer(w.Config.SocketEndpoint(), w.Config.BearerToken()),
		w.Config.ReconnectPolicy(),
		w.Log,
	)
	return chat.New(domain.UserID(w.Config.User), peer, w.Config.PresenceInterval(), chat.Deps{
		Vault:      w.Vault,
		Directory:  w.Directory,
		Reconciler: w.Reconciler,
		Protocol:   w.Protocol,
		Messages:   w.Messages,
		Conn:       conn,
		Log:        w.Log,
	})
}

// Close releases the database.
func (w *Wire) Close() error {
	return w.DB.Close()
}
