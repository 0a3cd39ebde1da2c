package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/logging"
	"pqchat/internal/services/reconcile"
	"pqchat/internal/telemetry"
)

// DefaultPresenceInterval is how often the peer's presence is polled.
const DefaultPresenceInterval = 30 * time.Second

const defaultEventBuffer = 64

var (
	// ErrSessionClosed is returned when a deactivated session is reused.
	ErrSessionClosed = errors.New("chat session closed")
	// ErrEmptyMessage is returned by Send for empty text.
	ErrEmptyMessage = errors.New("empty message")
	// ErrNotSaved is returned by Send when the message went out but could
	// not be written to the local log.
	ErrNotSaved = errors.New("sent but not saved locally")
)

// Recoverable reports whether a Send error leaves the session usable, and
// if so a short status line for the user.
func Recoverable(err error) (string, bool) {
	switch {
	case err == nil:
		return "", true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrSessionClosed):
		return "", false
	case errors.Is(err, ErrEmptyMessage):
		return "not sent: empty message", true
	case errors.Is(err, ErrNotSaved):
		return "sent, but not saved locally", true
	case errors.Is(err, domain.ErrChannelUnavailable), errors.Is(err, domain.ErrTransport):
		return "not sent: secure channel unavailable", true
	case errors.Is(err, domain.ErrKeyNotFound):
		return "not sent: peer has no published keys", true
	case errors.Is(err, domain.ErrDirectoryFetch):
		return "not sent: peer keys unavailable", true
	}
	return "", false
}

// Connection is the live channel a Session drives.
type Connection interface {
	Open(ctx context.Context) error
	Send(ctx context.Context, env domain.WireEnvelope) error
	Close() error
	State() domain.ConnectionState
	OnFrame(fn func(domain.WireEnvelope))
	OnStatus(fn func(domain.Status))
}

// Merger reconciles local and remote history.
type Merger interface {
	Merge(ctx context.Context, req reconcile.Request) (reconcile.Result, error)
}

// EventKind tells what an Event carries.
type EventKind int

const (
	// EventMessage: a message joined the timeline.
	EventMessage EventKind = iota + 1
	// EventStatus: the connection status changed.
	EventStatus
	// EventPresence: the peer went online or offline.
	EventPresence
)

// Event is a change the UI should render.
type Event struct {
	Kind    EventKind
	Message domain.Message
	Status  domain.Status
	Online  bool
}

// Deps are the collaborators of a Session.
type Deps struct {
	Vault      domain.KeyVault
	Directory  domain.PeerDirectory
	Reconciler Merger
	Protocol   domain.CryptoProtocol
	Messages   domain.MessageLog
	Conn       Connection
	Clock      clock.Clock
	Log        *zap.Logger
}

// Session is one active conversation between the local user and a peer.
//
// Activate loads keys and history and opens the connection; Deactivate
// tears it all down. Work that completes after Deactivate is discarded.
type Session struct {
	self, peer domain.UserID
	conv       domain.ConversationID
	presence   time.Duration

	vault      domain.KeyVault
	directory  domain.PeerDirectory
	reconciler Merger
	proto      domain.CryptoProtocol
	messages   domain.MessageLog
	conn       Connection
	clock      clock.Clock
	log        *zap.Logger

	mu           sync.Mutex
	live         bool
	done         bool
	keys         domain.IdentityKeys
	timeline     []domain.Message
	online       bool
	presenceSeen bool
	cancel       context.CancelFunc
	life         context.Context
	events       chan Event
	wg           sync.WaitGroup
}

// New returns an inactive session between self and peer. A non-positive
// presenceInterval selects DefaultPresenceInterval.
func New(self, peer domain.UserID, presenceInterval time.Duration, deps Deps) *Session {
	if presenceInterval <= 0 {
		presenceInterval = DefaultPresenceInterval
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Session{
		self:       self,
		peer:       peer,
		conv:       domain.NewConversationID(self, peer),
		presence:   presenceInterval,
		vault:      deps.Vault,
		directory:  deps.Directory,
		reconciler: deps.Reconciler,
		proto:      deps.Protocol,
		messages:   deps.Messages,
		conn:       deps.Conn,
		clock:      clk,
		log: logging.OrNop(deps.Log).Named("chat").With(
			zap.String("peer", peer.String())),
		events: make(chan Event, defaultEventBuffer),
	}
}

// ConversationID returns the id shared by both participants.
func (s *Session) ConversationID() domain.ConversationID { return s.conv }

// Events delivers timeline, status and presence changes. The channel is
// closed by Deactivate. Events are dropped if the reader falls behind.
func (s *Session) Events() <-chan Event { return s.events }

// Activate brings the session up.
//
// Steps:
//  1. Load the local identity keys. Missing keys are fatal.
//  2. Resolve the peer. On failure the session runs unverified.
//  3. Merge local and remote history into the timeline.
//  4. Open the connection and start polling presence.
//
// A failed first connect is not an error; the connection keeps retrying
// and reports progress through status events.
func (s *Session) Activate(ctx context.Context) (err error) {
	ctx, end := telemetry.StartSpan(ctx, "chat.Activate", telemetry.Peer(s.peer.String()))
	defer func() { end(err) }()

	s.mu.Lock()
	switch {
	case s.done:
		s.mu.Unlock()
		return ErrSessionClosed
	case s.live:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	keys, err := s.vault.Load(ctx, s.self)
	if err != nil {
		return err
	}

	var peerSigning []byte
	if rec, err := s.directory.Resolve(ctx, s.peer); err != nil {
		s.log.Warn("peer keys unavailable; history will be unverified", zap.Error(err))
	} else {
		peerSigning = rec.SigningPublic
	}

	res, err := s.reconciler.Merge(ctx, reconcile.Request{
		Self:              s.self,
		Peer:              s.peer,
		Keys:              keys,
		PeerSigningPublic: peerSigning,
	})
	if err != nil {
		return fmt.Errorf("merge history: %w", err)
	}

	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.keys = keys
	s.timeline = res.Timeline
	s.life, s.cancel = life, cancel
	s.live = true
	s.mu.Unlock()

	s.conn.OnFrame(s.receive)
	s.conn.OnStatus(func(st domain.Status) { s.emit(Event{Kind: EventStatus, Status: st}) })
	if err := s.conn.Open(life); err != nil {
		s.log.Warn("initial connect failed", zap.Error(err))
	}

	s.wg.Add(1)
	go s.pollPresence(life)

	s.log.Info("session active",
		zap.Int("messages", len(res.Timeline)),
		zap.Int("merged", res.Added),
		zap.Bool("history_partial", res.RemoteErr != nil),
	)
	return nil
}

// Send seals text for the peer and sends it over the open connection.
//
// The peer is resolved afresh on every send so a rotated key is used at
// once. When the local signing key is unusable the message goes out
// unsigned.
func (s *Session) Send(ctx context.Context, text string) (domain.Message, error) {
	if text == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	s.mu.Lock()
	live, keys := s.live, s.keys
	s.mu.Unlock()
	if !live || s.conn.State() != domain.StateOpen {
		return domain.Message{}, domain.NewError("chat.send", s.peer, domain.ErrChannelUnavailable)
	}

	rec, err := s.directory.Resolve(ctx, s.peer)
	if err != nil {
		return domain.Message{}, err
	}

	verified := domain.VerificationValid
	var p domain.SealedPayload
	if crypto.ValidateMLDSAPrivate(keys.SigningPrivate) == nil {
		p, err = s.proto.Seal(ctx, rec.EncapsulationPublic, text, keys.SigningPrivate)
	} else {
		s.log.Warn("signing key unusable; sending unsigned")
		verified = domain.VerificationUnknown
		p, err = s.proto.EncryptOnly(ctx, rec.EncapsulationPublic, text)
	}
	if err != nil {
		return domain.Message{}, err
	}

	if err := s.conn.Send(ctx, domain.NewWireEnvelope(p, s.self, s.peer)); err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ConversationID:    s.conv,
		SenderID:          s.self,
		ReceiverID:        s.peer,
		Timestamp:         domain.MessageTime(s.clock.Now()),
		LocalID:           uuid.NewString(),
		Plaintext:         text,
		SignatureVerified: verified,
		Origin:            domain.OriginLocal,
		Sealed:            &p,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrNotSaved, err)
	}
	s.add(msg)
	return msg, nil
}

// Timeline returns the conversation in timestamp order.
func (s *Session) Timeline() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.timeline))
	copy(out, s.timeline)
	return out
}

// Online reports the last polled presence of the peer.
func (s *Session) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Deactivate stops presence polling, closes the connection and closes the
// event channel. It is safe to call more than once.
func (s *Session) Deactivate() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	wasLive, cancel := s.live, s.cancel
	s.live = false
	s.done = true
	s.mu.Unlock()

	var err error
	if wasLive {
		cancel()
		err = s.conn.Close()
		s.wg.Wait()
	}

	s.mu.Lock()
	close(s.events)
	s.mu.Unlock()
	s.log.Info("session closed")
	return err
}

// receive handles one inbound frame from the read loop.
func (s *Session) receive(env domain.WireEnvelope) {
	if env.From != s.peer {
		s.log.Debug("ignoring frame for another conversation", zap.String("from", env.From.String()))
		return
	}
	s.mu.Lock()
	live, ctx, keys := s.live, s.life, s.keys
	s.mu.Unlock()
	if !live {
		return
	}

	msg := domain.Message{
		ConversationID: s.conv,
		SenderID:       s.peer,
		ReceiverID:     s.self,
		Timestamp:      domain.MessageTime(s.clock.Now()),
		LocalID:        uuid.NewString(),
		Origin:         domain.OriginRemote,
	}

	p, err := env.Payload()
	if err != nil {
		s.log.Warn("undecodable frame", zap.Error(err))
		msg = placeholder(msg)
	} else {
		msg.Sealed = &p
		seen, err := s.messages.HasCipher(ctx, s.conv, crypto.ContentFingerprint(p.EncapsulationCiphertext))
		if err == nil && seen {
			s.log.Debug("dropping replayed frame")
			return
		}
		opened, err := s.open(ctx, keys, p)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			s.log.Warn("inbound message failed to decrypt", zap.Error(err))
			msg = placeholder(msg)
		default:
			msg.Plaintext = opened.Plaintext
			msg.SignatureVerified = opened.SignatureVerified
		}
	}

	if !s.isLive() {
		return
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		s.log.Error("persist inbound message", zap.Error(err))
	}
	s.add(msg)
}

// open decrypts p, verifying against the peer's signing key when possible.
// A signature that fails against the cached key is retried once against a
// freshly resolved key.
func (s *Session) open(ctx context.Context, keys domain.IdentityKeys, p domain.SealedPayload) (domain.Opened, error) {
	signer := s.peerSigningKey(ctx)
	if len(p.Signature) == 0 || signer == nil {
		pt, err := s.proto.DecryptOnly(ctx, keys.EncapsulationPrivate, p)
		if err != nil {
			return domain.Opened{}, err
		}
		return domain.Opened{Plaintext: pt, SignatureVerified: domain.VerificationUnknown}, nil
	}

	opened, err := s.proto.Open(ctx, keys.EncapsulationPrivate, p, signer)
	if err != nil || opened.SignatureVerified != domain.VerificationInvalid {
		return opened, err
	}

	s.directory.Invalidate(s.peer)
	rec, rerr := s.directory.Resolve(ctx, s.peer)
	if rerr != nil || bytes.Equal(rec.SigningPublic, signer) {
		return opened, nil
	}
	if again, err := s.proto.Open(ctx, keys.EncapsulationPrivate, p, rec.SigningPublic); err == nil {
		return again, nil
	}
	return opened, nil
}

func (s *Session) peerSigningKey(ctx context.Context) []byte {
	if rec, ok := s.directory.Cached(s.peer); ok {
		return rec.SigningPublic
	}
	rec, err := s.directory.Resolve(ctx, s.peer)
	if err != nil {
		s.log.Debug("peer signing key unavailable", zap.Error(err))
		return nil
	}
	return rec.SigningPublic
}

func (s *Session) pollPresence(ctx context.Context) {
	defer s.wg.Done()
	t := s.clock.Ticker(s.presence)
	defer t.Stop()

	s.checkPresence(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.checkPresence(ctx)
		}
	}
}

func (s *Session) checkPresence(ctx context.Context) {
	online := s.directory.Presence(ctx, s.peer)
	s.mu.Lock()
	changed := !s.presenceSeen || online != s.online
	s.online, s.presenceSeen = online, true
	s.mu.Unlock()
	if changed {
		s.emit(Event{Kind: EventPresence, Online: online})
	}
}

// add inserts msg into the timeline and announces it.
func (s *Session) add(msg domain.Message) {
	s.mu.Lock()
	s.timeline = append(s.timeline, msg)
	sort.SliceStable(s.timeline, func(i, j int) bool {
		return s.timeline[i].Timestamp.Before(s.timeline[j].Timestamp)
	})
	s.mu.Unlock()
	s.emit(Event{Kind: EventMessage, Message: msg})
}

// emit delivers ev without blocking, and only while the session is live.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Debug("event dropped; reader is behind", zap.Int("kind", int(ev.Kind)))
	}
}

func (s *Session) isLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func placeholder(m domain.Message) domain.Message {
	m.Plaintext = domain.PlaceholderDecryptFailed
	m.Placeholder = true
	m.SignatureVerified = domain.VerificationInvalid
	return m
}
