package identity

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"go.uber.org/zap"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/logging"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)

	// ErrIdentityExists is returned by Generate when the user already has keys.
	// Identity keys are immutable once created.
	ErrIdentityExists = errors.New("identity already exists")
)

// Service creates the local identity and publishes its public half.
//
// The identity contains:
//   - ML-KEM-1024 key pair; peers encapsulate message keys to its public half.
//   - ML-DSA-65 key pair; every outgoing message is signed with it.
type Service struct {
	vault     domain.KeyVault
	directory domain.DirectoryClient
	log       *zap.Logger
}

// New returns an identity service. directory may be nil when no server is configured.
func New(vault domain.KeyVault, directory domain.DirectoryClient, log *zap.Logger) *Service {
	return &Service{vault: vault, directory: directory, log: logging.OrNop(log).Named("identity")}
}

// Generate creates and stores a new identity for user, returning it and its
// fingerprint. It refuses to replace an existing identity.
func (s *Service) Generate(
	ctx context.Context,
	user domain.UserID,
) (domain.IdentityKeys, domain.Fingerprint, error) {
	if _, err := s.vault.Load(ctx, user); err == nil {
		return domain.IdentityKeys{}, "", ErrIdentityExists
	} else if !errors.Is(err, domain.ErrKeyNotFound) {
		return domain.IdentityKeys{}, "", err
	}

	encPub, encPriv, err := crypto.GenerateMLKEM()
	if err != nil {
		return domain.IdentityKeys{}, "", err
	}
	signPub, signPriv, err := crypto.GenerateMLDSA()
	if err != nil {
		return domain.IdentityKeys{}, "", err
	}

	keys := domain.IdentityKeys{
		UserID:               user,
		EncapsulationPublic:  encPub,
		EncapsulationPrivate: encPriv,
		SigningPublic:        signPub,
		SigningPrivate:       signPriv,
	}
	if err := s.vault.Store(ctx, keys); err != nil {
		return domain.IdentityKeys{}, "", err
	}
	fp := FingerprintOf(keys.Public())
	s.log.Info("identity created", zap.String("user", user.String()), zap.String("fingerprint", fp.String()))
	return keys, fp, nil
}

// Fingerprint returns the short fingerprint of user's public keys.
func (s *Service) Fingerprint(ctx context.Context, user domain.UserID) (domain.Fingerprint, error) {
	keys, err := s.vault.Load(ctx, user)
	if err != nil {
		return "", err
	}
	return FingerprintOf(keys.Public()), nil
}

// Publish uploads user's public keys to the directory.
func (s *Service) Publish(ctx context.Context, user domain.UserID) error {
	if s.directory == nil {
		return errors.New("no server configured")
	}
	keys, err := s.vault.Load(ctx, user)
	if err != nil {
		return err
	}
	return s.directory.PublishKeys(ctx, user, domain.KeysDocument{
		KyberPublicKey:     crypto.B64(keys.EncapsulationPublic),
		DilithiumPublicKey: crypto.B64(keys.SigningPublic),
	})
}

// FingerprintOf returns the fingerprint shown to users for a pair of public keys.
func FingerprintOf(pub domain.PublicKeys) domain.Fingerprint {
	return domain.Fingerprint(crypto.Fingerprint(pub.EncapsulationPublic, pub.SigningPublic))
}

// CheckPassphrase enforces the passphrase strength policy.
func CheckPassphrase(passphrase string) error {
	if !isSecurePassphrase(passphrase) {
		return ErrWeakPassphrase
	}
	return nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
