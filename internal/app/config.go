package app

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"pqchat/internal/transport"
)

// Environment variables read by ApplyEnvOverrides.
const (
	EnvPassphrase = "PQCHAT_PASSPHRASE"
	EnvServerURL  = "PQCHAT_SERVER_URL"
	EnvLogLevel   = "PQCHAT_LOG_LEVEL"
)

// ConfigFilename is looked up in Home when no config path is given.
const ConfigFilename = "config.toml"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home      string `toml:"home"`       // data directory, e.g. $HOME/.pqchat
	ServerURL string `toml:"server_url"` // HTTP base URL, e.g. http://127.0.0.1:8080
	SocketURL string `toml:"socket_url"` // chat socket; derived from ServerURL when empty
	User      string `toml:"user"`
	Token     string `toml:"token"` // bearer token; defaults to User

	DedupToleranceMs    int             `toml:"dedup_tolerance_ms"`
	PresenceIntervalSec int             `toml:"presence_interval_sec"`
	Reconnect           ReconnectConfig `toml:"reconnect"`
	LogLevel            string          `toml:"log_level"`

	// Passphrase unlocks the key store. It is never read from the file.
	Passphrase string       `toml:"-"`
	HTTP       *http.Client `toml:"-"` // optional; defaults to http.DefaultClient
}

// ReconnectConfig bounds the live connection's retry schedule.
type ReconnectConfig struct {
	BaseDelayMs int `toml:"base_delay_ms"`
	MaxDelayMs  int `toml:"max_delay_ms"`
	MaxAttempts int `toml:"max_attempts"`
}

// DefaultHome returns $HOME/.pqchat, or .pqchat when the home directory is unknown.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pqchat"
	}
	return filepath.Join(home, ".pqchat")
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Home:                DefaultHome(),
		ServerURL:           "http://127.0.0.1:8080",
		DedupToleranceMs:    1000,
		PresenceIntervalSec: 30,
		Reconnect: ReconnectConfig{
			BaseDelayMs: 1000,
			MaxDelayMs:  10000,
			MaxAttempts: 5,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// ApplyEnvOverrides fills values from the environment.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvPassphrase); v != "" && c.Passphrase == "" {
		c.Passphrase = v
	}
	if v := os.Getenv(EnvServerURL); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Home == "":
		return errors.New("home directory is required")
	case c.User == "":
		return errors.New("user is required (--user or config 'user')")
	case strings.ContainsAny(c.User, "/_ "):
		return fmt.Errorf("user %q must not contain '/', '_' or spaces", c.User)
	case c.Passphrase == "":
		return fmt.Errorf("passphrase is required (-p or %s)", EnvPassphrase)
	case c.DedupToleranceMs <= 0:
		return errors.New("dedup_tolerance_ms must be positive")
	case c.PresenceIntervalSec <= 0:
		return errors.New("presence_interval_sec must be positive")
	case c.Reconnect.BaseDelayMs <= 0 || c.Reconnect.MaxDelayMs < c.Reconnect.BaseDelayMs:
		return errors.New("reconnect delays must be positive with max_delay_ms >= base_delay_ms")
	case c.Reconnect.MaxAttempts <= 0:
		return errors.New("reconnect.max_attempts must be positive")
	}
	if _, err := url.ParseRequestURI(c.ServerURL); err != nil {
		return fmt.Errorf("server_url: %w", err)
	}
	if c.SocketURL != "" {
		if _, err := url.ParseRequestURI(c.SocketURL); err != nil {
			return fmt.Errorf("socket_url: %w", err)
		}
	}
	return nil
}

// SocketEndpoint returns SocketURL, or the chat socket on ServerURL.
func (c Config) SocketEndpoint() string {
	if c.SocketURL != "" {
		return c.SocketURL
	}
	base := strings.TrimSuffix(c.ServerURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/chat"
}

// BearerToken returns Token, falling back to User.
func (c Config) BearerToken() string {
	if c.Token != "" {
		return c.Token
	}
	return c.User
}

// DedupTolerance is the window within which equal messages collapse.
func (c Config) DedupTolerance() time.Duration {
	return time.Duration(c.DedupToleranceMs) * time.Millisecond
}

// PresenceInterval is how often peer presence is polled.
func (c Config) PresenceInterval() time.Duration {
	return time.Duration(c.PresenceIntervalSec) * time.Second
}

// ReconnectPolicy converts the reconnect settings.
func (c Config) ReconnectPolicy() transport.Policy {
	return transport.Policy{
		BaseDelay:   time.Duration(c.Reconnect.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.Reconnect.MaxDelayMs) * time.Millisecond,
		MaxAttempts: c.Reconnect.MaxAttempts,
	}
}
