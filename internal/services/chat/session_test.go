package chat_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"pqchat/internal/domain"
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

const waitFor = 5 * time.Second

// user is one client with its own database, talking to a shared relay.
type user struct {
	id       domain.UserID
	keys     domain.IdentityKeys
	vault    *keyvault.Service
	dir      *directory.Service
	client   *relay.HTTP
	messages *store.MessageStore
	merger   *reconcile.Service
	proto    *sealed.Protocol
	socket   string
}

func newRelay(t *testing.T) (*relay.Server, *httptest.Server) {
	t.Helper()
	rs := relay.NewServer(nil)
	srv := httptest.NewServer(rs)
	t.Cleanup(func() {
		rs.Close()
		srv.Close()
	})
	return rs, srv
}

func newUser(t *testing.T, srv *httptest.Server, id domain.UserID, register bool) *user {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, store.DatabaseFilename))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	u := &user{
		id:       id,
		vault:    keyvault.New(store.NewKeyStore(db, "Correct-Horse-9!"), store.NewLegacyKeyFile(dir), nil),
		client:   relay.NewHTTP(srv.URL, id.String(), srv.Client()),
		messages: store.NewMessageStore(db, store.DefaultDedupTolerance),
		proto:    sealed.New(nil),
		socket:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat",
	}
	u.dir, err = directory.New(u.client, nil)
	require.NoError(t, err)
	u.merger = reconcile.New(u.messages, u.client, u.proto, u.messages.Tolerance(), nil)

	if register {
		ids := identity.New(u.vault, u.client, nil)
		u.keys, _, err = ids.Generate(context.Background(), id)
		require.NoError(t, err)
		require.NoError(t, ids.Publish(context.Background(), id))
	}
	return u
}

func (u *user) session(t *testing.T, peer domain.UserID, conn chat.Connection, clk clock.Clock) *chat.Session {
	t.Helper()
	if conn == nil {
		conn = transport.New(transport.NewWebSocketDialer(u.socket, u.id.String()), transport.DefaultPolicy(), nil)
	}
	s := chat.New(u.id, peer, 0, chat.Deps{
		Vault:      u.vault,
		Directory:  u.dir,
		Reconciler: u.merger,
		Protocol:   u.proto,
		Messages:   u.messages,
		Conn:       conn,
		Clock:      clk,
	})
	t.Cleanup(func() { _ = s.Deactivate() })
	return s
}

// await reads events until match accepts one.
func await(t *testing.T, events <-chan chat.Event, match func(chat.Event) bool) chat.Event {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed")
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func established(ev chat.Event) bool {
	return ev.Kind == chat.EventStatus && ev.Status.Text == transport.TextEstablished
}

func TestScenario_OfflineThenOnline(t *testing.T) {
	ctx := context.Background()
	rs, srv := newRelay(t)
	alice := newUser(t, srv, "alice", true)
	bob := newUser(t, srv, "bob", true)

	as := alice.session(t, "bob", nil, nil)
	require.NoError(t, as.Activate(ctx))
	await(t, as.Events(), established)
	require.False(t, rs.Online("bob"))

	sent, err := as.Send(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, domain.OriginLocal, sent.Origin)
	require.Equal(t, domain.VerificationValid, sent.SignatureVerified)

	require.Eventually(t, func() bool {
		feed, err := bob.client.FetchMessages(ctx, "alice")
		return err == nil && len(feed) == 1
	}, waitFor, 10*time.Millisecond)

	bs := bob.session(t, "alice", nil, nil)
	require.NoError(t, bs.Activate(ctx))
	tl := bs.Timeline()
	require.Len(t, tl, 1)
	require.Equal(t, "hello", tl[0].Plaintext)
	require.Equal(t, domain.UserID("alice"), tl[0].SenderID)
	require.Equal(t, domain.VerificationValid, tl[0].SignatureVerified)

	// Bob replies live; alice receives it on her open channel.
	await(t, bs.Events(), established)
	_, err = bs.Send(ctx, "hi alice")
	require.NoError(t, err)
	ev := await(t, as.Events(), func(ev chat.Event) bool { return ev.Kind == chat.EventMessage && ev.Message.Origin == domain.OriginRemote })
	require.Equal(t, "hi alice", ev.Message.Plaintext)
	require.Equal(t, domain.VerificationValid, ev.Message.SignatureVerified)
	require.Len(t, as.Timeline(), 2)

	// Reactivating merges again without duplicating anything.
	require.NoError(t, bs.Deactivate())
	again := bob.session(t, "alice", nil, nil)
	require.NoError(t, again.Activate(ctx))
	var texts []string
	for _, m := range again.Timeline() {
		texts = append(texts, m.Plaintext)
	}
	require.Equal(t, []string{"hello", "hi alice"}, texts)
}

// fakeConn is a Connection whose inbound frames are injected by the test.
type fakeConn struct {
	mu       sync.Mutex
	state    domain.ConnectionState
	openErr  error
	sent     []domain.WireEnvelope
	onFrame  func(domain.WireEnvelope)
	onStatus func(domain.Status)
}

func (c *fakeConn) Open(context.Context) error {
	c.mu.Lock()
	if c.openErr != nil {
		c.state = domain.StateReconnecting
		c.mu.Unlock()
		return c.openErr
	}
	c.state = domain.StateOpen
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(domain.Status{State: domain.StateOpen, Text: transport.TextEstablished})
	}
	return nil
}

func (c *fakeConn) Send(_ context.Context, env domain.WireEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateOpen {
		return domain.ErrChannelUnavailable
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.state = domain.StateClosed
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) OnFrame(fn func(domain.WireEnvelope)) {
	c.mu.Lock()
	c.onFrame = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnStatus(fn func(domain.Status)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

func (c *fakeConn) deliver(env domain.WireEnvelope) {
	c.mu.Lock()
	fn := c.onFrame
	c.mu.Unlock()
	fn(env)
}

func TestSession_MissingKeysIsFatal(t *testing.T) {
	_, srv := newRelay(t)
	newUser(t, srv, "bob", true)
	nobody := newUser(t, srv, "nobody", false)

	s := nobody.session(t, "bob", &fakeConn{}, nil)
	require.ErrorIs(t, s.Activate(context.Background()), domain.ErrKeyNotFound)
}

func TestSession_SendRequiresOpenChannel(t *testing.T) {
	_, srv := newRelay(t)
	alice := newUser(t, srv, "alice", true)
	newUser(t, srv, "bob", true)

	conn := &fakeConn{openErr: domain.ErrTransport}
	s := alice.session(t, "bob", conn, nil)
	require.NoError(t, s.Activate(context.Background()))

	_, err := s.Send(context.Background(), "hello")
	require.ErrorIs(t, err, domain.ErrChannelUnavailable)
	require.Empty(t, s.Timeline())

	_, err = s.Send(context.Background(), "")
	require.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestSession_InboundFrames(t *testing.T) {
	ctx := context.Background()
	_, srv := newRelay(t)
	alice := newUser(t, srv, "alice", true)
	bob := newUser(t, srv, "bob", true)
	mallory := newUser(t, srv, "mallory", true)

	conn := &fakeConn{}
	s := alice.session(t, "bob", conn, nil)
	require.NoError(t, s.Activate(ctx))

	signed, err := sealed.Seal(alice.keys.EncapsulationPublic, "from bob", bob.keys.SigningPrivate)
	require.NoError(t, err)
	forged, err := sealed.Seal(alice.keys.EncapsulationPublic, "forged", mallory.keys.SigningPrivate)
	require.NoError(t, err)
	unsigned, err := sealed.EncryptOnly(alice.keys.EncapsulationPublic, "unsigned")
	require.NoError(t, err)
	misaddressed, err := sealed.Seal(bob.keys.EncapsulationPublic, "not for alice", bob.keys.SigningPrivate)
	require.NoError(t, err)

	// Other conversations are not ours to show.
	conn.deliver(domain.NewWireEnvelope(signed, "mallory", "alice"))

	conn.deliver(domain.NewWireEnvelope(signed, "bob", "alice"))
	conn.deliver(domain.NewWireEnvelope(forged, "bob", "alice"))
	conn.deliver(domain.NewWireEnvelope(unsigned, "bob", "alice"))
	conn.deliver(domain.NewWireEnvelope(misaddressed, "bob", "alice"))

	got := map[string]domain.Verification{}
	for _, m := range s.Timeline() {
		require.Equal(t, domain.UserID("bob"), m.SenderID)
		got[m.Plaintext] = m.SignatureVerified
	}
	require.Equal(t, map[string]domain.Verification{
		"from bob":                      domain.VerificationValid,
		"forged":                        domain.VerificationInvalid,
		"unsigned":                      domain.VerificationUnknown,
		domain.PlaceholderDecryptFailed: domain.VerificationInvalid,
	}, got)

	stored, err := alice.messages.List(ctx, s.ConversationID())
	require.NoError(t, err)
	require.Len(t, stored, 4)
}

func TestSession_ReplayedFrameIsDroppedLater(t *testing.T) {
	ctx := context.Background()
	_, srv := newRelay(t)
	alice := newUser(t, srv, "alice", true)
	bob := newUser(t, srv, "bob", true)

	mock := clock.NewMock()
	conn := &fakeConn{}
	s := alice.session(t, "bob", conn, mock)
	require.NoError(t, s.Activate(ctx))

	p, err := sealed.Seal(alice.keys.EncapsulationPublic, "once", bob.keys.SigningPrivate)
	require.NoError(t, err)
	env := domain.NewWireEnvelope(p, "bob", "alice")

	conn.deliver(env)
	// A resend after a reconnect arrives at least one backoff step later.
	mock.Add(8 * time.Second)
	conn.deliver(env)

	require.Len(t, s.Timeline(), 1)
	stored, err := alice.messages.List(ctx, s.ConversationID())
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestSession_SendToUnregisteredPeerStaysUsable(t *testing.T) {
	ctx := context.Background()
	_, srv := newRelay(t)
	alice := newUser(t, srv, "alice", true)

	conn := &fakeConn{}
	s := alice.session(t, "carol", conn, nil)
	require.NoError(t, s.Activate(ctx))

	_, err := s.Send(ctx, "anyone there?")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
	text, ok := chat.Recoverable(err)
	require.True(t, ok)
	require.Equal(t, "not sent: peer has no published keys", text)
	require.Empty(t, conn.sent)

	newUser(t, srv, "carol", true)
	msg, err := s.Send(ctx, "now?")
	require.NoError(t, err)
	require.Equal(t, "now?", msg.Plaintext)
	require.Len(t, conn.sent, 1)
}

func TestRecoverable(t *testing.T) {
	for name, tc := range map[string]struct {
		err  error
		ok   bool
		text string
	}{
		"channel": {domain.NewError("chat.send", "bob", domain.ErrChannelUnavailable), true,
			"not sent: secure channel unavailable"},
		"write": {domain.Wrap("connection.send", "bob", domain.ErrTransport, errors.New("broken pipe")), true,
			"not sent: secure channel unavailable"},
		"directory down": {domain.Wrap("relay.keys", "bob", domain.ErrDirectoryFetch, errors.New("refused")), true,
			"not sent: peer keys unavailable"},
		"unregistered": {domain.Wrap("relay.keys", "bob", domain.ErrKeyNotFound, errors.New("404")), true,
			"not sent: peer has no published keys"},
		"not saved": {fmt.Errorf("%w: %w", chat.ErrNotSaved, errors.New("disk full")), true,
			"sent, but not saved locally"},
		"empty":     {chat.ErrEmptyMessage, true, "not sent: empty message"},
		"cancelled": {fmt.Errorf("seal: %w", context.Canceled), false, ""},
		"closed":    {chat.ErrSessionClosed, false, ""},
		"unknown":   {errors.New("boom"), false, ""},
	} {
		t.Run(name, func(t *testing.T) {
			text, ok := chat.Recoverable(tc.err)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.text, text)
		})
	}
}

func TestSession_SendSealsForPeer(t *testing.T) {
	ctx := context.Background()
	_, srv := newRelay(t)
	alice := newUser(t, srv, "alice", true)
	bob := newUser(t, srv, "bob", true)

	conn := &fakeConn{}
	s := alice.session(t, "bob", conn, nil)
	require.NoError(t, s.Activate(ctx))

	msg, err := s.Send(ctx, "sealed for bob")
	require.NoError(t, err)
	require.Len(t, conn.sent, 1)
	env := conn.sent[0]
	require.Equal(t, domain.EnvelopeTypeEncrypted, env.Type)
	require.Equal(t, domain.UserID("bob"), env.To)
	require.NotContains(t, env.EncryptedMessage, "sealed for bob")

	p, err := env.Payload()
	require.NoError(t, err)
	opened, err := sealed.Open(bob.keys.EncapsulationPrivate, p, alice.keys.SigningPublic)
	require.NoError(t, err)
	require.Equal(t, "sealed for bob", opened.Plaintext)
	require.Equal(t, domain.VerificationValid, opened.SignatureVerified)

	require.Equal(t, []domain.Message{msg}, s.Timeline())
}

func TestSession_DeactivateStopsEverything(t *testing.T) {
	_, srv := newRelay(t)
	alice := newUser(t, srv, "alice", true)
	bob := newUser(t, srv, "bob", true)

	conn := &fakeConn{}
	s := alice.session(t, "bob", conn, nil)
	require.NoError(t, s.Activate(context.Background()))
	require.NoError(t, s.Deactivate())
	require.Equal(t, domain.StateClosed, conn.State())

	for range s.Events() {
	}

	p, err := sealed.Seal(alice.keys.EncapsulationPublic, "too late", bob.keys.SigningPrivate)
	require.NoError(t, err)
	conn.deliver(domain.NewWireEnvelope(p, "bob", "alice"))
	require.Empty(t, s.Timeline())

	require.ErrorIs(t, s.Activate(context.Background()), chat.ErrSessionClosed)
	require.NoError(t, s.Deactivate())
}

func TestSession_PresencePolling(t *testing.T) {
	rs, srv := newRelay(t)
	alice := newUser(t, srv, "alice", true)
	bob := newUser(t, srv, "bob", true)

	mock := clock.NewMock()
	s := alice.session(t, "bob", &fakeConn{}, mock)
	require.NoError(t, s.Activate(context.Background()))

	ev := await(t, s.Events(), func(ev chat.Event) bool { return ev.Kind == chat.EventPresence })
	require.False(t, ev.Online)

	bc := transport.New(transport.NewWebSocketDialer(bob.socket, "bob"), transport.DefaultPolicy(), nil)
	require.NoError(t, bc.Open(context.Background()))
	t.Cleanup(func() { _ = bc.Close() })
	require.Eventually(t, func() bool { return rs.Online("bob") }, waitFor, 10*time.Millisecond)

	mock.Add(chat.DefaultPresenceInterval)
	ev = await(t, s.Events(), func(ev chat.Event) bool { return ev.Kind == chat.EventPresence })
	require.True(t, ev.Online)
	require.True(t, s.Online())
}
