package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
)

// DefaultDedupTolerance is the window within which two messages with equal
// sender and content are treated as the same message. It is a heuristic
// matched to how far server timestamps drift from client send times.
const DefaultDedupTolerance = time.Second

// MessageStore is the durable per-conversation message log.
//
// Rows are insert-only. The single permitted update attaches a remote id to a
// local row that has none.
type MessageStore struct {
	db        *DB
	tolerance time.Duration
}

// NewMessageStore returns a MessageStore over db. A non-positive tolerance
// selects DefaultDedupTolerance.
func NewMessageStore(db *DB, tolerance time.Duration) *MessageStore {
	if tolerance <= 0 {
		tolerance = DefaultDedupTolerance
	}
	return &MessageStore{db: db, tolerance: tolerance}
}

// Tolerance returns the dedup window used by Exists.
func (s *MessageStore) Tolerance() time.Duration { return s.tolerance }

// Append inserts msg. A missing LocalID is filled with a random UUID.
func (s *MessageStore) Append(ctx context.Context, msg domain.Message) error {
	if msg.ConversationID == "" {
		return errors.New("append message: empty conversation id")
	}
	if msg.LocalID == "" {
		msg.LocalID = uuid.NewString()
	}

	var (
		remoteID, plaintextFP, cipherFP sql.NullString
		verified                        sql.NullInt64
		encCT, body, nonce, sig         []byte
	)
	if msg.RemoteID != "" {
		remoteID = sql.NullString{String: msg.RemoteID, Valid: true}
	}
	if !msg.Placeholder && msg.Plaintext != "" {
		plaintextFP = sql.NullString{String: crypto.ContentFingerprint([]byte(msg.Plaintext)), Valid: true}
	}
	switch msg.SignatureVerified {
	case domain.VerificationValid:
		verified = sql.NullInt64{Int64: 1, Valid: true}
	case domain.VerificationInvalid:
		verified = sql.NullInt64{Int64: 0, Valid: true}
	}
	if msg.Sealed != nil {
		encCT, body, nonce, sig = msg.Sealed.EncapsulationCiphertext, msg.Sealed.EncryptedPayload,
			msg.Sealed.Nonce, msg.Sealed.Signature
		if fp := crypto.ContentFingerprint(encCT); fp != "" {
			cipherFP = sql.NullString{String: fp, Valid: true}
		}
	}
	if msg.CipherFingerprint != "" {
		cipherFP = sql.NullString{String: msg.CipherFingerprint, Valid: true}
	}

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO messages (
			local_id, conversation_id, sender_id, receiver_id, timestamp_ms, remote_id,
			plaintext, placeholder, verified, origin, plaintext_fp, cipher_fp,
			encapsulation_ciphertext, encrypted_payload, nonce, signature
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.LocalID, string(msg.ConversationID), string(msg.SenderID), string(msg.ReceiverID),
		toMillis(msg.Timestamp), remoteID, msg.Plaintext, msg.Placeholder, verified,
		string(msg.Origin), plaintextFP, cipherFP, encCT, body, nonce, sig,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// List returns the conversation ordered by timestamp, ties in insertion order.
func (s *MessageStore) List(ctx context.Context, conv domain.ConversationID) ([]domain.Message, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT local_id, sender_id, receiver_id, timestamp_ms, remote_id, plaintext,
		       placeholder, verified, origin, encapsulation_ciphertext, encrypted_payload,
		       nonce, signature
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp_ms ASC, seq ASC`, string(conv))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m                       domain.Message
			sender, receiver, orig  string
			ts                      int64
			remoteID                sql.NullString
			verified                sql.NullInt64
			encCT, body, nonce, sig []byte
		)
		if err := rows.Scan(
			&m.LocalID, &sender, &receiver, &ts, &remoteID, &m.Plaintext,
			&m.Placeholder, &verified, &orig, &encCT, &body, &nonce, &sig,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ConversationID = conv
		m.SenderID = domain.UserID(sender)
		m.ReceiverID = domain.UserID(receiver)
		m.Timestamp = fromMillis(ts)
		m.RemoteID = remoteID.String
		m.Origin = domain.Origin(orig)
		if verified.Valid {
			m.SignatureVerified = domain.Verified(verified.Int64 == 1)
		}
		if len(encCT) > 0 {
			m.Sealed = &domain.SealedPayload{
				EncapsulationCiphertext: encCT,
				EncryptedPayload:        body,
				Nonce:                   nonce,
				Signature:               sig,
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

// Exists reports whether a message from sender whose plaintext or
// encapsulation-ciphertext fingerprint equals fingerprint lies within the
// tolerance window around ts.
func (s *MessageStore) Exists(
	ctx context.Context,
	conv domain.ConversationID,
	ts time.Time,
	sender domain.UserID,
	fingerprint string,
) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	ms, tol := toMillis(ts), s.tolerance.Milliseconds()
	var one int
	err := s.db.db.QueryRowContext(ctx, `
		SELECT 1 FROM messages
		WHERE conversation_id = ? AND sender_id = ?
		  AND timestamp_ms > ? AND timestamp_ms < ?
		  AND (plaintext_fp = ? OR cipher_fp = ?)
		LIMIT 1`,
		string(conv), string(sender), ms-tol, ms+tol, fingerprint, fingerprint,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("message exists: %w", err)
	}
	return true, nil
}

// HasCipher reports whether a row carries the ciphertext fingerprint. KEM
// ciphertexts are fresh per message, so no time window applies.
func (s *MessageStore) HasCipher(ctx context.Context, conv domain.ConversationID, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	var one int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE conversation_id = ? AND cipher_fp = ? LIMIT 1`,
		string(conv), fingerprint,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("message has cipher: %w", err)
	}
	return true, nil
}

// HasRemote reports whether a row already carries remoteID.
func (s *MessageStore) HasRemote(ctx context.Context, conv domain.ConversationID, remoteID string) (bool, error) {
	if remoteID == "" {
		return false, nil
	}
	var one int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE conversation_id = ? AND remote_id = ? LIMIT 1`,
		string(conv), remoteID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("message has remote: %w", err)
	}
	return true, nil
}

// AttachRemoteID records the server id of a local message. It never
// overwrites an id that is already set.
func (s *MessageStore) AttachRemoteID(ctx context.Context, localID, remoteID string) error {
	_, err := s.db.db.ExecContext(ctx,
		`UPDATE messages SET remote_id = ? WHERE local_id = ? AND remote_id IS NULL`,
		remoteID, localID,
	)
	if err != nil {
		return fmt.Errorf("attach remote id: %w", err)
	}
	return nil
}

// Compile-time assertion that MessageStore implements domain.MessageLog.
var _ domain.MessageLog = (*MessageStore)(nil)
