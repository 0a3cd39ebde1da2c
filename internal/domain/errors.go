package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every layer. Callers match them with errors.Is.
var (
	// ErrKeyNotFound means no usable local or peer key exists.
	ErrKeyNotFound = errors.New("key not found")

	// ErrDecryptionFailure means AEAD authentication failed; the message is unrecoverable.
	ErrDecryptionFailure = errors.New("decryption failed")

	// ErrSignatureVerification means a signature did not verify.
	ErrSignatureVerification = errors.New("signature verification failed")

	// ErrTransport means the live connection dropped or failed its handshake.
	ErrTransport = errors.New("transport error")

	// ErrDirectoryFetch means a directory or history request failed.
	ErrDirectoryFetch = errors.New("directory fetch failed")

	// ErrChannelUnavailable is returned by sends while the channel is not open.
	ErrChannelUnavailable = errors.New("channel unavailable")
)

// Error wraps one of the sentinels with the operation and peer involved.
type Error struct {
	Op   string // operation that failed, e.g. "directory.resolve"
	Peer UserID // optional
	Err  error
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError returns an *Error for op.
func NewError(op string, peer UserID, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

// Wrap joins a sentinel with an underlying cause so that errors.Is matches both.
func Wrap(op string, peer UserID, sentinel, cause error) *Error {
	if cause == nil {
		return NewError(op, peer, sentinel)
	}
	return NewError(op, peer, fmt.Errorf("%w: %w", sentinel, cause))
}
