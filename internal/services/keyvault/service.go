package keyvault

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/logging"
)

// Service loads and stores the local identity keys.
//
// Lookup order:
//  1. The durable key store.
//  2. The legacy flat key file, if configured. Usable keys found there are
//     copied into the durable store so later loads hit step 1.
type Service struct {
	keys   domain.KeyStore
	legacy domain.LegacyKeyStore
	log    *zap.Logger
}

// New returns a vault over keys. legacy may be nil.
func New(keys domain.KeyStore, legacy domain.LegacyKeyStore, log *zap.Logger) *Service {
	return &Service{keys: keys, legacy: legacy, log: logging.OrNop(log).Named("keyvault")}
}

// Load returns the usable keypair of user. When none exists the error wraps
// domain.ErrKeyNotFound.
func (s *Service) Load(ctx context.Context, user domain.UserID) (domain.IdentityKeys, error) {
	keys, ok, err := s.keys.LoadKeys(ctx, user)
	if err != nil {
		return domain.IdentityKeys{}, fmt.Errorf("load keys for %s: %w", user, err)
	}
	if ok {
		verr := Validate(keys)
		if verr == nil {
			return keys, nil
		}
		s.log.Warn("stored keys are unusable", zap.String("user", user.String()), zap.Error(verr))
	}

	if keys, ok := s.migrateLegacy(ctx, user); ok {
		return keys, nil
	}
	return domain.IdentityKeys{}, domain.NewError("keyvault.load", user, domain.ErrKeyNotFound)
}

// Store validates and persists keys.
func (s *Service) Store(ctx context.Context, keys domain.IdentityKeys) error {
	if err := Validate(keys); err != nil {
		return err
	}
	return s.keys.SaveKeys(ctx, keys)
}

func (s *Service) migrateLegacy(ctx context.Context, user domain.UserID) (domain.IdentityKeys, bool) {
	if s.legacy == nil {
		return domain.IdentityKeys{}, false
	}
	keys, ok, err := s.legacy.LoadLegacyKeys()
	if err != nil {
		s.log.Warn("legacy keys unreadable", zap.Error(err))
		return domain.IdentityKeys{}, false
	}
	if !ok {
		return domain.IdentityKeys{}, false
	}
	if err := Validate(keys); err != nil {
		s.log.Warn("legacy keys are unusable", zap.Error(err))
		return domain.IdentityKeys{}, false
	}

	keys.UserID = user
	if err := s.keys.SaveKeys(ctx, keys); err != nil {
		// The keys still work for this session; migration is retried next load.
		s.log.Warn("legacy key migration failed", zap.String("user", user.String()), zap.Error(err))
	} else {
		s.log.Info("migrated legacy keys", zap.String("user", user.String()))
	}
	return keys, true
}

// Validate reports whether all four halves of keys parse. The error wraps
// domain.ErrKeyNotFound.
func Validate(keys domain.IdentityKeys) error {
	if !keys.Complete() {
		return domain.Wrap("keyvault.validate", keys.UserID, domain.ErrKeyNotFound, errors.New("incomplete keypair"))
	}
	for _, check := range []func() error{
		func() error { return crypto.ValidateMLKEMPublic(keys.EncapsulationPublic) },
		func() error { return crypto.ValidateMLKEMPrivate(keys.EncapsulationPrivate) },
		func() error { return crypto.ValidateMLDSAPublic(keys.SigningPublic) },
		func() error { return crypto.ValidateMLDSAPrivate(keys.SigningPrivate) },
	} {
		if err := check(); err != nil {
			return domain.Wrap("keyvault.validate", keys.UserID, domain.ErrKeyNotFound, err)
		}
	}
	return nil
}

// Compile-time assertion that Service implements domain.KeyVault.
var _ domain.KeyVault = (*Service)(nil)
