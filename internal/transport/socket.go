package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes used by the chat socket.
const (
	CloseNormal          = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseAbnormal        = websocket.CloseAbnormalClosure
)

// closeGrace bounds how long a close frame may take to write.
const closeGrace = time.Second

// CloseError reports why a socket stopped delivering frames.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("socket closed (%d)", e.Code)
	}
	return fmt.Sprintf("socket closed (%d): %s", e.Code, e.Text)
}

// Terminal reports whether the closure means the session is over and must
// not be retried.
func Terminal(code int) bool {
	switch code {
	case CloseNormal, CloseGoingAway, ClosePolicyViolation:
		return true
	}
	return false
}

// closeCode extracts the close code from a read error. Anything that is not
// a close frame counts as an abnormal closure.
func closeCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CloseAbnormal
}

// Socket is one established text-frame connection.
type Socket interface {
	// ReadMessage blocks for the next frame. It returns a *CloseError once
	// the peer closes.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Close sends a close frame with code and releases the connection.
	Close(code int, reason string) error
}

// Dialer establishes sockets.
type Dialer interface {
	Dial(ctx context.Context) (Socket, error)
}

// WebSocketDialer dials the chat endpoint with a bearer token.
type WebSocketDialer struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
}

// NewWebSocketDialer returns a dialer for url authenticating with token.
func NewWebSocketDialer(url, token string) *WebSocketDialer {
	return &WebSocketDialer{URL: url, Token: token, Dialer: websocket.DefaultDialer}
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context) (Socket, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	h := http.Header{}
	if d.Token != "" {
		h.Set("Authorization", "Bearer "+d.Token)
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, h)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return &wsSocket{conn: conn}, nil
}

// wsSocket adapts a gorilla connection. gorilla allows one concurrent
// writer, so writes are serialized.
type wsSocket struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if err == nil {
		return data, nil
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return nil, &CloseError{Code: ce.Code, Text: ce.Text}
	}
	return nil, &CloseError{Code: CloseAbnormal, Text: err.Error()}
}

func (s *wsSocket) WriteMessage(data []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Close(code int, reason string) error {
	s.wmu.Lock()
	err := s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(closeGrace))
	s.wmu.Unlock()
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
