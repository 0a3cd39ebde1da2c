package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
)

// LegacyKeysFilename is the flat key-value file written by older clients.
const LegacyKeysFilename = "legacy_keys.json"

// Entry names used by older clients. Values are base64.
const (
	legacyKyberPublic      = "kyberPublic"
	legacyKyberPrivate     = "kyberPrivate"
	legacyDilithiumPublic  = "dilithiumPublic"
	legacyDilithiumPrivate = "dilithiumPrivate"
)

// LegacyKeyFile reads keys from the flat key-value file older clients kept
// beside their data. It is never written by the vault; keys found here are
// migrated into the KeyStore.
type LegacyKeyFile struct {
	path string
	mu   sync.Mutex
}

// NewLegacyKeyFile returns a LegacyKeyFile for the file in dir.
func NewLegacyKeyFile(dir string) *LegacyKeyFile {
	return &LegacyKeyFile{path: filepath.Join(dir, LegacyKeysFilename)}
}

// LoadLegacyKeys returns the keys in the file. ok is false when the file is
// missing or lacks any of the four entries.
func (s *LegacyKeyFile) LoadLegacyKeys() (domain.IdentityKeys, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make(map[string]string)
	if err := readJSON(s.path, &entries); err != nil {
		return domain.IdentityKeys{}, false, fmt.Errorf("read legacy keys: %w", err)
	}

	var (
		keys domain.IdentityKeys
		err  error
	)
	fields := []struct {
		name string
		dst  *[]byte
	}{
		{legacyKyberPublic, &keys.EncapsulationPublic},
		{legacyKyberPrivate, &keys.EncapsulationPrivate},
		{legacyDilithiumPublic, &keys.SigningPublic},
		{legacyDilithiumPrivate, &keys.SigningPrivate},
	}
	for _, f := range fields {
		v, ok := entries[f.name]
		if !ok || v == "" {
			return domain.IdentityKeys{}, false, nil
		}
		if *f.dst, err = crypto.UnB64(v); err != nil {
			return domain.IdentityKeys{}, false, fmt.Errorf("legacy %s: %w", f.name, err)
		}
	}
	return keys, true, nil
}

// SaveLegacyKeys writes keys in the legacy layout. Only import tooling and
// tests use it.
func (s *LegacyKeyFile) SaveLegacyKeys(keys domain.IdentityKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeJSON(s.path, map[string]string{
		legacyKyberPublic:      crypto.B64(keys.EncapsulationPublic),
		legacyKyberPrivate:     crypto.B64(keys.EncapsulationPrivate),
		legacyDilithiumPublic:  crypto.B64(keys.SigningPublic),
		legacyDilithiumPrivate: crypto.B64(keys.SigningPrivate),
	}, 0o600)
}

// Compile-time assertion that LegacyKeyFile implements domain.LegacyKeyStore.
var _ domain.LegacyKeyStore = (*LegacyKeyFile)(nil)
