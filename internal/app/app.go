package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pqchat/internal/domain"
	"pqchat/internal/services/chat"
	"pqchat/internal/services/identity"
	"pqchat/internal/services/reconcile"
	"pqchat/internal/transport"
)

// App is the set of use cases the CLI drives, for the configured user.
type App struct {
	wire *Wire
	user domain.UserID
}

func New(w *Wire) *App {
	return &App{wire: w, user: domain.UserID(w.Config.User)}
}

// User returns the local user id.
func (a *App) User() domain.UserID { return a.user }

// Init creates the local identity. The passphrase must pass the strength policy.
func (a *App) Init(ctx context.Context) (domain.Fingerprint, error) {
	if err := identity.CheckPassphrase(a.wire.Config.Passphrase); err != nil {
		return "", err
	}
	_, fp, err := a.wire.Identity.Generate(ctx, a.user)
	return fp, err
}

// Fingerprint returns the local identity's fingerprint.
func (a *App) Fingerprint(ctx context.Context) (domain.Fingerprint, error) {
	return a.wire.Identity.Fingerprint(ctx, a.user)
}

// PeerFingerprint resolves peer and returns the fingerprint of its keys.
func (a *App) PeerFingerprint(ctx context.Context, peer domain.UserID) (domain.Fingerprint, error) {
	rec, err := a.wire.Directory.Resolve(ctx, peer)
	if err != nil {
		return "", err
	}
	return identity.FingerprintOf(domain.PublicKeys{
		EncapsulationPublic: rec.EncapsulationPublic,
		SigningPublic:       rec.SigningPublic,
	}), nil
}

// Register publishes the local public keys.
func (a *App) Register(ctx context.Context) error {
	return a.wire.Identity.Publish(ctx, a.user)
}

// History merges and returns the conversation with peer without opening a
// live connection.
func (a *App) History(ctx context.Context, peer domain.UserID) (reconcile.Result, error) {
	keys, err := a.wire.Vault.Load(ctx, a.user)
	if err != nil {
		return reconcile.Result{}, err
	}
	req := reconcile.Request{Self: a.user, Peer: peer, Keys: keys}
	if rec, err := a.wire.Directory.Resolve(ctx, peer); err == nil {
		req.PeerSigningPublic = rec.SigningPublic
	} else {
		a.wire.Log.Warn("peer keys unavailable; history is unverified",
			zap.String("peer", peer.String()), zap.Error(err))
	}
	return a.wire.Reconciler.Merge(ctx, req)
}

// Chat activates a session with peer. The caller must Deactivate it.
func (a *App) Chat(ctx context.Context, peer domain.UserID) (*chat.Session, error) {
	if peer == a.user {
		return nil, fmt.Errorf("cannot chat with yourself")
	}
	s := a.wire.NewSession(peer)
	if err := s.Activate(ctx); err != nil {
		_ = s.Deactivate()
		return nil, err
	}
	return s, nil
}

// Send delivers one message to peer: it activates a session, waits up to
// timeout for the channel to open, sends, and tears the session down.
func (a *App) Send(ctx context.Context, peer domain.UserID, text string, timeout time.Duration) (domain.Message, error) {
	s, err := a.Chat(ctx, peer)
	if err != nil {
		return domain.Message{}, err
	}
	defer func() { _ = s.Deactivate() }()

	if err := awaitOpen(ctx, s.Events(), timeout); err != nil {
		return domain.Message{}, err
	}
	return s.Send(ctx, text)
}

// awaitOpen blocks until the session reports an established channel.
func awaitOpen(ctx context.Context, events <-chan chat.Event, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return domain.ErrChannelUnavailable
			}
			if ev.Kind != chat.EventStatus {
				continue
			}
			switch {
			case ev.Status.Text == transport.TextEstablished:
				return nil
			case ev.Status.State == domain.StateClosed:
				return fmt.Errorf("%w: %s", domain.ErrChannelUnavailable, ev.Status.Text)
			}
		case <-deadline.C:
			return fmt.Errorf("%w: timed out after %s", domain.ErrChannelUnavailable, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
