package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/logging"
)

// DefaultCacheSize bounds the number of peers kept in memory.
const DefaultCacheSize = 256

// Service resolves peers to their current public keys.
//
// Every Resolve asks the server, so a rotated peer key is picked up on the
// next send. The in-memory cache only serves as a fallback when the server
// cannot be reached; it is never consulted across process restarts.
type Service struct {
	client domain.DirectoryClient
	cache  *lru.Cache
	clock  clock.Clock
	log    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for PeerKeyRecord.FetchedAt.
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// New returns a directory backed by client.
func New(client domain.DirectoryClient, log *zap.Logger, opts ...Option) (*Service, error) {
	cache, err := lru.New(DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("directory cache: %w", err)
	}
	s := &Service{
		client: client,
		cache:  cache,
		clock:  clock.New(),
		log:    logging.OrNop(log).Named("directory"),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Resolve fetches peer's keys.
//
// Missing or undecodable keys yield an error wrapping domain.ErrKeyNotFound
// and drop any cached record. If the fetch itself fails, a cached record is
// returned when one exists; otherwise the domain.ErrDirectoryFetch error is.
func (s *Service) Resolve(ctx context.Context, peer domain.UserID) (domain.PeerKeyRecord, error) {
	doc, err := s.client.FetchPeerKeys(ctx, peer)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			s.cache.Remove(peer)
			return domain.PeerKeyRecord{}, err
		}
		if rec, ok := s.Cached(peer); ok {
			s.log.Warn("directory unreachable; using cached keys",
				zap.String("peer", peer.String()), zap.Error(err))
			return rec, nil
		}
		return domain.PeerKeyRecord{}, err
	}

	rec, err := s.decode(peer, doc)
	if err != nil {
		s.cache.Remove(peer)
		return domain.PeerKeyRecord{}, err
	}
	s.cache.Add(peer, rec)
	return rec, nil
}

// Cached returns the last resolved record for peer, if any.
func (s *Service) Cached(peer domain.UserID) (domain.PeerKeyRecord, bool) {
	v, ok := s.cache.Get(peer)
	if !ok {
		return domain.PeerKeyRecord{}, false
	}
	return v.(domain.PeerKeyRecord), true
}

// Invalidate drops the cached record for peer, e.g. after a signature fails
// to verify against it.
func (s *Service) Invalidate(peer domain.UserID) {
	s.cache.Remove(peer)
}

// Presence reports whether peer is online. Any failure reads as offline.
func (s *Service) Presence(ctx context.Context, peer domain.UserID) bool {
	doc, err := s.client.FetchPresence(ctx, peer)
	if err != nil {
		s.log.Debug("presence check failed", zap.String("peer", peer.String()), zap.Error(err))
		return false
	}
	return doc.IsOnline
}

func (s *Service) decode(peer domain.UserID, doc domain.KeysDocument) (domain.PeerKeyRecord, error) {
	if doc.KyberPublicKey == "" || doc.DilithiumPublicKey == "" {
		return domain.PeerKeyRecord{}, domain.Wrap("directory.resolve", peer, domain.ErrKeyNotFound,
			errors.New("missing public key"))
	}
	enc, err := crypto.UnB64(doc.KyberPublicKey)
	if err != nil || len(enc) == 0 {
		return domain.PeerKeyRecord{}, domain.Wrap("directory.resolve", peer, domain.ErrKeyNotFound,
			fmt.Errorf("encapsulation key: %v", err))
	}
	sig, err := crypto.UnB64(doc.DilithiumPublicKey)
	if err != nil || len(sig) == 0 {
		return domain.PeerKeyRecord{}, domain.Wrap("directory.resolve", peer, domain.ErrKeyNotFound,
			fmt.Errorf("verification key: %v", err))
	}
	return domain.PeerKeyRecord{
		PeerID:              peer,
		EncapsulationPublic: enc,
		SigningPublic:       sig,
		FetchedAt:           s.clock.Now(),
	}, nil
}

// Compile-time assertion that Service implements domain.PeerDirectory.
var _ domain.PeerDirectory = (*Service)(nil)
