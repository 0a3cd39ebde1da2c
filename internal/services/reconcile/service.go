package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/logging"
	"pqchat/internal/telemetry"
)

// Request names the conversation to merge and the keys needed to read it.
type Request struct {
	Self domain.UserID
	Peer domain.UserID
	// Keys are the local identity keys; only the private encapsulation key is used.
	Keys domain.IdentityKeys
	// PeerSigningPublic verifies the peer's messages. When nil, peer messages
	// are decrypted without verification.
	PeerSigningPublic []byte
}

// Result is the outcome of a merge.
type Result struct {
	// Timeline is the merged conversation in timestamp order.
	Timeline []domain.Message
	// Added counts remote items that were new and have been persisted.
	Added int
	// Skipped counts remote items already represented locally or sent by us.
	Skipped int
	// RemoteErr is set when the remote feed could not be fetched; Timeline
	// then holds local history only.
	RemoteErr error
}

// Service merges the local message log with the server history feed.
type Service struct {
	messages  domain.MessageLog
	history   domain.HistoryClient
	proto     domain.CryptoProtocol
	tolerance time.Duration
	log       *zap.Logger
}

// New returns a reconciler. tolerance is the dedup window; see
// store.DefaultDedupTolerance.
func New(
	messages domain.MessageLog,
	history domain.HistoryClient,
	proto domain.CryptoProtocol,
	tolerance time.Duration,
	log *zap.Logger,
) *Service {
	return &Service{
		messages:  messages,
		history:   history,
		proto:     proto,
		tolerance: tolerance,
		log:       logging.OrNop(log).Named("reconcile"),
	}
}

// Merge builds the canonical timeline for the conversation between req.Self
// and req.Peer.
//
// Steps:
//  1. Load local messages, decrypting in memory any still held as ciphertext.
//  2. Fetch the remote feed. On failure return the local timeline with RemoteErr set.
//  3. For each remote item: skip our own encrypted messages (only the
//     recipient can read them, so the local log is their source of truth);
//     skip items already merged, by remote id or ciphertext fingerprint;
//     otherwise decrypt, falling back to a placeholder.
//  4. Drop items equal to an existing entry (same sender and plaintext,
//     timestamps within tolerance), attaching the remote id to a matching
//     local message. Persist the rest.
//  5. Sort by timestamp.
//
// Running Merge again over the same inputs yields the same timeline.
func (s *Service) Merge(ctx context.Context, req Request) (res Result, err error) {
	conv := domain.NewConversationID(req.Self, req.Peer)
	ctx, end := telemetry.StartSpan(ctx, "reconcile.Merge", telemetry.Conversation(conv.String()))
	defer func() { end(err) }()

	local, err := s.messages.List(ctx, conv)
	if err != nil {
		return Result{}, fmt.Errorf("load local history: %w", err)
	}
	merged := make([]domain.Message, 0, len(local))
	for _, m := range local {
		if m.Pending() {
			if m, err = s.decryptLocal(ctx, req, m); err != nil {
				return Result{}, err
			}
		}
		merged = append(merged, m)
	}

	remote, err := s.history.FetchMessages(ctx, req.Peer)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		s.log.Warn("remote history unavailable; showing local history",
			zap.String("peer", req.Peer.String()), zap.Error(err))
		sortTimeline(merged)
		return Result{Timeline: merged, RemoteErr: err}, nil
	}

	for _, item := range remote {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if item.SenderID != req.Peer && item.SenderID != req.Self {
			continue
		}
		if item.SenderID == req.Self && item.MessageType == domain.MessageTypeEncrypted {
			res.Skipped++
			continue
		}

		seen, err := s.alreadyMerged(ctx, conv, item)
		if err != nil {
			return Result{}, err
		}
		if seen {
			res.Skipped++
			continue
		}

		msg, err := s.materialize(ctx, req, conv, item)
		if err != nil {
			return Result{}, err
		}

		if i := findDuplicate(merged, msg, s.tolerance); i >= 0 {
			if merged[i].RemoteID == "" && msg.RemoteID != "" {
				if err := s.messages.AttachRemoteID(ctx, merged[i].LocalID, msg.RemoteID); err != nil {
					return Result{}, err
				}
				merged[i].RemoteID = msg.RemoteID
			}
			res.Skipped++
			continue
		}

		if err := s.messages.Append(ctx, msg); err != nil {
			return Result{}, fmt.Errorf("persist merged message: %w", err)
		}
		merged = append(merged, msg)
		res.Added++
	}

	sortTimeline(merged)
	res.Timeline = merged
	s.log.Debug("history merged",
		zap.String("conversation", conv.String()),
		zap.Int("added", res.Added),
		zap.Int("skipped", res.Skipped),
		zap.Int("total", len(merged)),
	)
	return res, nil
}

// alreadyMerged reports whether a previous merge or the live channel already
// stored item.
func (s *Service) alreadyMerged(ctx context.Context, conv domain.ConversationID, item domain.RemoteMessage) (bool, error) {
	if item.ID != "" {
		ok, err := s.messages.HasRemote(ctx, conv, item.ID)
		if err != nil || ok {
			return ok, err
		}
	}
	return s.messages.HasCipher(ctx, conv, itemFingerprint(item))
}

// itemFingerprint identifies a feed item independently of its server id: the
// encapsulation ciphertext when it decodes, otherwise a digest of the raw
// fields. Readable plaintext items get none; they dedup by content.
func itemFingerprint(item domain.RemoteMessage) string {
	if item.Encrypted() {
		if p, err := item.Payload(); err == nil {
			return crypto.ContentFingerprint(p.EncapsulationCiphertext)
		}
	} else if item.MessageType != domain.MessageTypeEncrypted && item.Message != "" {
		return ""
	}
	return crypto.TupleFingerprint(
		[]byte(item.SenderID),
		[]byte(strconv.FormatInt(domain.MessageTime(item.Timestamp).UnixMilli(), 10)),
		[]byte(item.MessageType),
		[]byte(item.Ciphertext),
		[]byte(item.EncryptedMessage),
		[]byte(item.IV),
		[]byte(item.Signature),
	)
}

// materialize turns a remote item into a timeline entry. Failures to decrypt
// become placeholders; only context cancellation is returned as an error.
func (s *Service) materialize(
	ctx context.Context,
	req Request,
	conv domain.ConversationID,
	item domain.RemoteMessage,
) (domain.Message, error) {
	msg := domain.Message{
		ConversationID: conv,
		SenderID:       item.SenderID,
		ReceiverID:     item.ReceiverID,
		Timestamp:      domain.MessageTime(item.Timestamp),
		LocalID:        uuid.NewString(),
		RemoteID:       item.ID,
		Origin:         domain.OriginRemote,

		CipherFingerprint: itemFingerprint(item),
	}

	switch {
	case item.Encrypted():
		p, err := item.Payload()
		if err != nil {
			s.log.Warn("undecodable history item", zap.String("id", item.ID), zap.Error(err))
			return placeholder(msg, domain.PlaceholderDecryptFailed), nil
		}
		msg.Sealed = &p
		opened, err := s.open(ctx, req, p, item.SenderID)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Message{}, ctx.Err()
			}
			s.log.Warn("history item failed to decrypt", zap.String("id", item.ID), zap.Error(err))
			return placeholder(msg, domain.PlaceholderDecryptFailed), nil
		}
		msg.Plaintext = opened.Plaintext
		msg.SignatureVerified = opened.SignatureVerified

	case item.MessageType != domain.MessageTypeEncrypted && item.Message != "":
		msg.Plaintext = item.Message
		msg.SignatureVerified = domain.VerificationUnknown

	default:
		return placeholder(msg, domain.PlaceholderUnreadable), nil
	}
	return msg, nil
}

// decryptLocal reads a stored message still held as ciphertext. The result
// is not written back; the log stays immutable.
func (s *Service) decryptLocal(ctx context.Context, req Request, m domain.Message) (domain.Message, error) {
	opened, err := s.open(ctx, req, *m.Sealed, m.SenderID)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Message{}, ctx.Err()
		}
		s.log.Warn("stored message failed to decrypt", zap.String("local_id", m.LocalID), zap.Error(err))
		return placeholder(m, domain.PlaceholderDecryptFailed), nil
	}
	m.Plaintext = opened.Plaintext
	m.SignatureVerified = opened.SignatureVerified
	return m, nil
}

// open verifies against the peer key when the message carries a signature
// and the key is known, and decrypts without verification otherwise.
func (s *Service) open(ctx context.Context, req Request, p domain.SealedPayload, sender domain.UserID) (domain.Opened, error) {
	var signer []byte
	if sender == req.Peer {
		signer = req.PeerSigningPublic
	}
	if len(p.Signature) > 0 && len(signer) > 0 {
		return s.proto.Open(ctx, req.Keys.EncapsulationPrivate, p, signer)
	}
	pt, err := s.proto.DecryptOnly(ctx, req.Keys.EncapsulationPrivate, p)
	if err != nil {
		return domain.Opened{}, err
	}
	return domain.Opened{Plaintext: pt, SignatureVerified: domain.VerificationUnknown}, nil
}

func placeholder(m domain.Message, text string) domain.Message {
	m.Plaintext = text
	m.Placeholder = true
	m.SignatureVerified = domain.VerificationInvalid
	return m
}

// findDuplicate returns the index of an entry in timeline that msg duplicates, or -1.
func findDuplicate(timeline []domain.Message, msg domain.Message, tolerance time.Duration) int {
	if msg.Placeholder {
		return -1
	}
	for i, m := range timeline {
		if Duplicates(m, msg, tolerance) {
			return i
		}
	}
	return -1
}

// Duplicates reports whether a and b are the same message: equal sender,
// equal readable plaintext, and timestamps closer than tolerance.
func Duplicates(a, b domain.Message, tolerance time.Duration) bool {
	if a.Placeholder || b.Placeholder || a.SenderID != b.SenderID || a.Plaintext != b.Plaintext {
		return false
	}
	d := a.Timestamp.Sub(b.Timestamp)
	if d < 0 {
		d = -d
	}
	return d < tolerance
}

func sortTimeline(ms []domain.Message) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Timestamp.Before(ms[j].Timestamp) })
}
