package transport

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"pqchat/internal/domain"
	"pqchat/internal/logging"
)

// Frame markers sent by the server.
const (
	StatusPrefix      = "STATUS:"
	unauthorizedToken = "Unauthorized"
)

// Status texts shown to the user.
const (
	TextEstablished  = "Secure channel established"
	TextDisconnected = "Secure channel disconnected"
	TextTerminated   = "Connection failed - Security protocol terminated"
)

// ReconnectingText is the status shown while waiting delay before the next attempt.
func ReconnectingText(delay time.Duration) string {
	return "Re-establishing secure channel in " +
		strconv.FormatFloat(delay.Seconds(), 'f', -1, 64) + "s..."
}

// Policy bounds reconnection. Delays grow as min(BaseDelay*2^n, MaxDelay).
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultPolicy is 1s doubling to 10s, five attempts.
func DefaultPolicy() Policy {
	return Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second, MaxAttempts: 5}
}

func (p Policy) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Option configures a Connection.
type Option func(*Connection)

// WithClock sets the clock driving reconnect timers.
func WithClock(c clock.Clock) Option { return func(conn *Connection) { conn.clock = c } }

// Connection is a self-healing live channel to the server.
//
// Abnormal closures are retried with exponential backoff until the policy's
// attempt budget runs out. Normal, going-away and policy-violation closures
// end the connection. Every dial gets a new generation; events from an older
// socket are ignored.
type Connection struct {
	dialer Dialer
	policy Policy
	clock  clock.Clock
	log    *zap.Logger

	mu       sync.Mutex
	state    domain.ConnectionState
	sock     Socket
	gen      uint64
	attempts int
	backoff  *backoff.ExponentialBackOff
	timer    *clock.Timer
	life     context.Context
	onFrame  func(domain.WireEnvelope)
	onStatus func(domain.Status)
}

// New returns an idle connection using dialer.
func New(dialer Dialer, policy Policy, log *zap.Logger, opts ...Option) *Connection {
	if policy.BaseDelay <= 0 || policy.MaxDelay <= 0 || policy.MaxAttempts <= 0 {
		policy = DefaultPolicy()
	}
	c := &Connection{
		dialer: dialer,
		policy: policy,
		clock:  clock.New(),
		log:    logging.OrNop(log).Named("transport"),
		state:  domain.StateIdle,
		life:   context.Background(),
	}
	for _, o := range opts {
		o(c)
	}
	c.backoff = policy.backoff()
	return c
}

// OnFrame registers the handler for inbound encrypted frames. Frames are
// delivered one at a time from the read loop.
func (c *Connection) OnFrame(fn func(domain.WireEnvelope)) {
	c.mu.Lock()
	c.onFrame = fn
	c.mu.Unlock()
}

// OnStatus registers the handler for status changes.
func (c *Connection) OnStatus(fn func(domain.Status)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

// State returns the current state.
func (c *Connection) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open dials the server. It is a no-op while connecting or open. ctx bounds
// the whole life of the connection, reconnects included.
//
// A failed dial is returned, and a reconnect is scheduled as for any
// abnormal closure.
func (c *Connection) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state == domain.StateConnecting || c.state == domain.StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	c.life = ctx
	c.attempts = 0
	c.backoff.Reset()
	c.gen++
	gen := c.gen
	c.state = domain.StateConnecting
	c.mu.Unlock()

	return c.dial(gen)
}

// Send writes env to the server.
func (c *Connection) Send(ctx context.Context, env domain.WireEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	sock, state := c.sock, c.state
	c.mu.Unlock()
	if state != domain.StateOpen || sock == nil {
		return domain.NewError("connection.send", env.To, domain.ErrChannelUnavailable)
	}

	b, err := json.Marshal(env)
	if err != nil {
		return domain.Wrap("connection.send", env.To, domain.ErrTransport, err)
	}
	if err := sock.WriteMessage(b); err != nil {
		return domain.Wrap("connection.send", env.To, domain.ErrTransport, err)
	}
	return nil
}

// Close cancels any pending reconnect and closes the socket normally.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.stopTimerLocked()
	c.gen++
	sock := c.sock
	c.sock = nil
	switch c.state {
	case domain.StateIdle, domain.StateClosed:
		c.state = domain.StateClosed
		c.mu.Unlock()
		return nil
	}
	c.state = domain.StateClosing
	c.mu.Unlock()

	var err error
	if sock != nil {
		err = sock.Close(CloseNormal, "client closing")
	}

	c.mu.Lock()
	if c.state == domain.StateClosing {
		c.state = domain.StateClosed
	}
	c.mu.Unlock()
	c.emit(domain.Status{State: domain.StateClosed, Text: TextDisconnected})
	return err
}

func (c *Connection) dial(gen uint64) error {
	c.mu.Lock()
	ctx := c.life
	c.mu.Unlock()

	sock, err := c.dialer.Dial(ctx)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if sock != nil {
			_ = sock.Close(CloseNormal, "superseded")
		}
		return domain.NewError("connection.open", "", domain.ErrChannelUnavailable)
	}
	if err != nil {
		c.log.Warn("dial failed", zap.Int("attempt", c.attempts), zap.Error(err))
		st := c.abnormalLocked()
		c.mu.Unlock()
		c.emit(st)
		return domain.Wrap("connection.open", "", domain.ErrTransport, err)
	}
	c.sock = sock
	c.state = domain.StateOpen
	c.attempts = 0
	c.backoff.Reset()
	c.mu.Unlock()

	c.log.Info("connected")
	c.emit(domain.Status{State: domain.StateOpen, Text: TextEstablished})
	go c.readLoop(gen, sock)
	return nil
}

// abnormalLocked schedules the next attempt or gives up.
func (c *Connection) abnormalLocked() domain.Status {
	c.sock = nil
	c.gen++
	if c.life.Err() != nil {
		c.state = domain.StateClosed
		return domain.Status{State: domain.StateClosed, Text: TextDisconnected}
	}
	if c.attempts >= c.policy.MaxAttempts {
		c.state = domain.StateClosed
		c.log.Warn("giving up reconnecting", zap.Int("attempts", c.attempts))
		return domain.Status{State: domain.StateClosed, Text: TextTerminated}
	}

	delay := c.backoff.NextBackOff()
	c.attempts++
	c.state = domain.StateReconnecting
	next := c.gen
	c.timer = c.clock.AfterFunc(delay, func() { c.retry(next) })
	c.log.Info("reconnect scheduled", zap.Int("attempt", c.attempts), zap.Duration("delay", delay))
	return domain.Status{State: domain.StateReconnecting, Text: ReconnectingText(delay)}
}

func (c *Connection) retry(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != domain.StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = domain.StateConnecting
	c.mu.Unlock()

	_ = c.dial(gen)
}

func (c *Connection) readLoop(gen uint64, sock Socket) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			c.closed(gen, err)
			return
		}
		if !c.current(gen) {
			return
		}
		c.frame(gen, sock, data)
	}
}

func (c *Connection) frame(gen uint64, sock Socket, data []byte) {
	var env domain.WireEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Type == domain.EnvelopeTypeEncrypted {
		c.mu.Lock()
		fn := c.onFrame
		c.mu.Unlock()
		if fn != nil {
			fn(env)
		}
		return
	}

	text := string(data)
	if strings.Contains(text, unauthorizedToken) {
		c.log.Warn("server rejected credentials")
		c.emit(domain.Status{State: domain.StateOpen, Text: strings.TrimPrefix(text, StatusPrefix)})
		c.terminate(gen, sock, ClosePolicyViolation, unauthorizedToken)
		return
	}
	if strings.HasPrefix(text, StatusPrefix) {
		c.emit(domain.Status{State: domain.StateOpen, Text: strings.TrimPrefix(text, StatusPrefix)})
		return
	}
	c.log.Debug("dropping malformed frame", zap.Int("bytes", len(data)))
}

// terminate closes sock with a terminal code; no reconnect follows.
func (c *Connection) terminate(gen uint64, sock Socket, code int, reason string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.sock = nil
	c.state = domain.StateClosing
	c.mu.Unlock()

	_ = sock.Close(code, reason)

	c.mu.Lock()
	if c.state == domain.StateClosing {
		c.state = domain.StateClosed
	}
	c.mu.Unlock()
	c.emit(domain.Status{State: domain.StateClosed, Text: TextDisconnected})
}

func (c *Connection) closed(gen uint64, err error) {
	code := closeCode(err)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	var st domain.Status
	if Terminal(code) {
		c.gen++
		c.sock = nil
		c.state = domain.StateClosed
		st = domain.Status{State: domain.StateClosed, Text: TextDisconnected}
	} else {
		c.log.Warn("connection lost", zap.Int("code", code), zap.Error(err))
		st = c.abnormalLocked()
	}
	c.mu.Unlock()
	c.emit(st)
}

func (c *Connection) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Connection) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Connection) emit(st domain.Status) {
	c.mu.Lock()
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}
