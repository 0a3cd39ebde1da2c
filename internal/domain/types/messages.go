package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Verification is the outcome of checking a message signature. The zero
// value means no signature could be checked.
type Verification int8

const (
	// VerificationUnknown marks an unsigned or unverifiable message.
	VerificationUnknown Verification = iota
	// VerificationValid marks a message whose signature verified.
	VerificationValid
	// VerificationInvalid marks a message whose signature failed or was malformed.
	VerificationInvalid
)

// Verified converts a boolean verification result.
func Verified(ok bool) Verification {
	if ok {
		return VerificationValid
	}
	return VerificationInvalid
}

// String returns "true", "false" or "null".
func (v Verification) String() string {
	switch v {
	case VerificationValid:
		return "true"
	case VerificationInvalid:
		return "false"
	default:
		return "null"
	}
}

// MarshalJSON encodes the verification as true, false or null.
func (v Verification) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalJSON decodes true, false or null.
func (v *Verification) UnmarshalJSON(b []byte) error {
	var ok *bool
	if err := json.Unmarshal(b, &ok); err != nil {
		return err
	}
	switch {
	case ok == nil:
		*v = VerificationUnknown
	case *ok:
		*v = VerificationValid
	default:
		*v = VerificationInvalid
	}
	return nil
}

// Origin records where a message entered the local log.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Texts shown in place of a message that could not be recovered.
const (
	PlaceholderDecryptFailed = "[Failed to decrypt message]"
	PlaceholderUnreadable    = "[Unable to decrypt message]"
)

// MessageTime normalizes t to the millisecond UTC precision messages are stored at.
func MessageTime(t time.Time) time.Time { return time.UnixMilli(t.UnixMilli()).UTC() }

// SealedPayload is the output of sealing one message.
type SealedPayload struct {
	EncapsulationCiphertext []byte `json:"encapsulation_ciphertext"`
	EncryptedPayload        []byte `json:"encrypted_payload"`
	Nonce                   []byte `json:"nonce"`
	Signature               []byte `json:"signature,omitempty"`
}

// Empty reports whether the payload carries no ciphertext at all.
func (p SealedPayload) Empty() bool {
	return len(p.EncapsulationCiphertext) == 0 || len(p.EncryptedPayload) == 0 || len(p.Nonce) == 0
}

// Message is one entry of a conversation timeline.
type Message struct {
	ConversationID    ConversationID `json:"conversation_id"`
	SenderID          UserID         `json:"sender_id"`
	ReceiverID        UserID         `json:"receiver_id"`
	Timestamp         time.Time      `json:"timestamp"`
	LocalID           string         `json:"local_id"`
	RemoteID          string         `json:"remote_id,omitempty"`
	Plaintext         string         `json:"plaintext"`
	SignatureVerified Verification   `json:"signature_verified"`
	Origin            Origin         `json:"origin"`
	// Placeholder is set when Plaintext is a stand-in for an unrecoverable message.
	Placeholder bool `json:"placeholder,omitempty"`
	// Sealed holds the raw ciphertext fields, if the message arrived encrypted.
	Sealed *SealedPayload `json:"sealed,omitempty"`
	// CipherFingerprint identifies the source item when Sealed cannot. It is
	// written to the log for duplicate detection and not read back.
	CipherFingerprint string `json:"-"`
}

// Pending reports whether the message still awaits decryption.
func (m Message) Pending() bool {
	return m.Plaintext == "" && !m.Placeholder && m.Sealed != nil && !m.Sealed.Empty()
}

// EnvelopeTypeEncrypted is the only structured frame type on the wire.
const EnvelopeTypeEncrypted = "encrypted-message"

// WireEnvelope is the JSON frame exchanged over the live connection. Binary
// fields are standard base64.
type WireEnvelope struct {
	Type             string `json:"type"`
	Ciphertext       string `json:"ciphertext"`
	EncryptedMessage string `json:"encryptedMessage"`
	IV               string `json:"iv"`
	Signature        string `json:"signature,omitempty"`
	To               UserID `json:"to,omitempty"`
	From             UserID `json:"from,omitempty"`
}

// NewWireEnvelope encodes a sealed payload for transmission from one user to another.
func NewWireEnvelope(p SealedPayload, from, to UserID) WireEnvelope {
	env := WireEnvelope{
		Type:             EnvelopeTypeEncrypted,
		Ciphertext:       base64.StdEncoding.EncodeToString(p.EncapsulationCiphertext),
		EncryptedMessage: base64.StdEncoding.EncodeToString(p.EncryptedPayload),
		IV:               base64.StdEncoding.EncodeToString(p.Nonce),
		To:               to,
		From:             from,
	}
	if len(p.Signature) > 0 {
		env.Signature = base64.StdEncoding.EncodeToString(p.Signature)
	}
	return env
}

// Payload decodes the binary fields of the envelope.
func (e WireEnvelope) Payload() (SealedPayload, error) {
	return decodePayload(e.Ciphertext, e.EncryptedMessage, e.IV, e.Signature)
}

// Message types reported by the history feed.
const (
	MessageTypeEncrypted = "encrypted"
	MessageTypePlaintext = "plaintext"
)

// RemoteMessage is one item of the GET /messages/{peer} history feed.
type RemoteMessage struct {
	ID               string    `json:"id"`
	SenderID         UserID    `json:"sender_id"`
	ReceiverID       UserID    `json:"receiver_id"`
	MessageType      string    `json:"message_type"`
	Ciphertext       string    `json:"ciphertext,omitempty"`
	EncryptedMessage string    `json:"encrypted_message,omitempty"`
	IV               string    `json:"iv,omitempty"`
	Signature        string    `json:"signature,omitempty"`
	Message          string    `json:"message,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Encrypted reports whether the item carries a complete ciphertext.
func (m RemoteMessage) Encrypted() bool {
	return m.MessageType == MessageTypeEncrypted &&
		m.Ciphertext != "" && m.EncryptedMessage != "" && m.IV != ""
}

// Payload decodes the binary fields of the item.
func (m RemoteMessage) Payload() (SealedPayload, error) {
	return decodePayload(m.Ciphertext, m.EncryptedMessage, m.IV, m.Signature)
}

func decodePayload(ct, payload, iv, sig string) (SealedPayload, error) {
	var (
		p   SealedPayload
		err error
	)
	if p.EncapsulationCiphertext, err = base64.StdEncoding.DecodeString(ct); err != nil {
		return SealedPayload{}, fmt.Errorf("decode ciphertext: %w", err)
	}
	if p.EncryptedPayload, err = base64.StdEncoding.DecodeString(payload); err != nil {
		return SealedPayload{}, fmt.Errorf("decode encrypted message: %w", err)
	}
	if p.Nonce, err = base64.StdEncoding.DecodeString(iv); err != nil {
		return SealedPayload{}, fmt.Errorf("decode iv: %w", err)
	}
	if sig != "" {
		if p.Signature, err = base64.StdEncoding.DecodeString(sig); err != nil {
			return SealedPayload{}, fmt.Errorf("decode signature: %w", err)
		}
	}
	return p, nil
}
