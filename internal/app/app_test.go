package app_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pqchat/internal/app"
	"pqchat/internal/domain"
	"pqchat/internal/relay"
	"pqchat/internal/services/identity"
	"pqchat/internal/transport"
)

const strongPassphrase = "Correct-Horse-9!"

func TestLoadConfig_FileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), app.ConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(`
user = "alice"
server_url = "https://chat.example.org"
dedup_tolerance_ms = 1500

[reconnect]
max_attempts = 3
`), 0o600))

	cfg, err := app.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "alice", cfg.User)
	require.Equal(t, "https://chat.example.org", cfg.ServerURL)
	require.Equal(t, 1500*time.Millisecond, cfg.DedupTolerance())
	require.Equal(t, transport.Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second, MaxAttempts: 3},
		cfg.ReconnectPolicy())
	require.Equal(t, 30*time.Second, cfg.PresenceInterval())
	require.Equal(t, "wss://chat.example.org/ws/chat", cfg.SocketEndpoint())
	require.Equal(t, "alice", cfg.BearerToken())
}

func TestLoadConfig_MissingFileIsDefaults(t *testing.T) {
	cfg, err := app.LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, app.DefaultConfig(), cfg)
}

func TestLoadConfig_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), app.ConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte("passphrase = \"nope\"\n"), 0o600))
	_, err := app.LoadConfig(path)
	require.Error(t, err)
}

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv(app.EnvPassphrase, strongPassphrase)
	t.Setenv(app.EnvServerURL, "http://10.0.0.1:9000")

	cfg := app.DefaultConfig()
	cfg.ApplyEnvOverrides()
	require.Equal(t, strongPassphrase, cfg.Passphrase)
	require.Equal(t, "ws://10.0.0.1:9000/ws/chat", cfg.SocketEndpoint())

	// A flag value wins over the environment.
	cfg = app.DefaultConfig()
	cfg.Passphrase = "from-flag"
	cfg.ApplyEnvOverrides()
	require.Equal(t, "from-flag", cfg.Passphrase)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() app.Config {
		c := app.DefaultConfig()
		c.User = "alice"
		c.Passphrase = strongPassphrase
		return c
	}
	require.NoError(t, valid().Validate())

	for name, mutate := range map[string]func(*app.Config){
		"no user":         func(c *app.Config) { c.User = "" },
		"underscore user": func(c *app.Config) { c.User = "a_b" },
		"no passphrase":   func(c *app.Config) { c.Passphrase = "" },
		"zero tolerance":  func(c *app.Config) { c.DedupToleranceMs = 0 },
		"inverted delays": func(c *app.Config) { c.Reconnect.MaxDelayMs = 10 },
		"no attempts":     func(c *app.Config) { c.Reconnect.MaxAttempts = 0 },
		"bad server url":  func(c *app.Config) { c.ServerURL = "not a url" },
	} {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func newApp(t *testing.T, srv *httptest.Server, user string, passphrase string) *app.App {
	t.Helper()
	cfg := app.DefaultConfig()
	cfg.Home = t.TempDir()
	cfg.ServerURL = srv.URL
	cfg.User = user
	cfg.Passphrase = passphrase
	cfg.HTTP = srv.Client()
	require.NoError(t, cfg.Validate())

	w, err := app.NewWire(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return app.New(w)
}

func TestApp_SendAndHistory(t *testing.T) {
	ctx := context.Background()
	rs := relay.NewServer(nil)
	srv := httptest.NewServer(rs)
	t.Cleanup(func() { rs.Close(); srv.Close() })

	alice := newApp(t, srv, "alice", strongPassphrase)
	bob := newApp(t, srv, "bob", strongPassphrase)
	for _, a := range []*app.App{alice, bob} {
		fp, err := a.Init(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, fp)
		require.NoError(t, a.Register(ctx))
	}

	fp, err := alice.Fingerprint(ctx)
	require.NoError(t, err)
	seen, err := bob.PeerFingerprint(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, fp, seen)

	sent, err := alice.Send(ctx, "bob", "hello", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, "hello", sent.Plaintext)

	require.Eventually(t, func() bool {
		res, err := bob.History(ctx, "alice")
		return err == nil && len(res.Timeline) == 1
	}, 5*time.Second, 20*time.Millisecond)

	res, err := bob.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, res.Timeline, 1)
	require.Equal(t, "hello", res.Timeline[0].Plaintext)
	require.Equal(t, domain.VerificationValid, res.Timeline[0].SignatureVerified)

	mine, err := alice.History(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, mine.Timeline, 1)
	require.Equal(t, domain.OriginLocal, mine.Timeline[0].Origin)
}

func TestApp_InitRejectsWeakPassphrase(t *testing.T) {
	srv := httptest.NewServer(relay.NewServer(nil))
	t.Cleanup(srv.Close)

	a := newApp(t, srv, "alice", "short")
	_, err := a.Init(context.Background())
	require.ErrorIs(t, err, identity.ErrWeakPassphrase)
}

func TestApp_InitTwiceFails(t *testing.T) {
	srv := httptest.NewServer(relay.NewServer(nil))
	t.Cleanup(srv.Close)

	a := newApp(t, srv, "alice", strongPassphrase)
	_, err := a.Init(context.Background())
	require.NoError(t, err)
	_, err = a.Init(context.Background())
	require.ErrorIs(t, err, identity.ErrIdentityExists)
}
