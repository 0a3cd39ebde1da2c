package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pqchat/internal/domain"
	"pqchat/internal/util/memzero"
)

// privateHalves is the plaintext sealed into identity_keys.private_sealed.
type privateHalves struct {
	EncapsulationPrivate []byte `json:"encapsulation_private"`
	SigningPrivate       []byte `json:"signing_private"`
}

// KeyStore persists identity keys in SQLite. Private halves are sealed
// under the passphrase before they reach disk.
type KeyStore struct {
	db         *DB
	passphrase string
	kdf        kdfParams
}

// NewKeyStore returns a KeyStore over db using passphrase for private keys.
func NewKeyStore(db *DB, passphrase string) *KeyStore {
	return &KeyStore{db: db, passphrase: passphrase, kdf: defaultKDF()}
}

// SaveKeys writes keys for keys.UserID, replacing any previous record.
func (s *KeyStore) SaveKeys(ctx context.Context, keys domain.IdentityKeys) error {
	if keys.UserID == "" {
		return errors.New("save keys: empty user id")
	}
	raw, err := json.Marshal(privateHalves{
		EncapsulationPrivate: keys.EncapsulationPrivate,
		SigningPrivate:       keys.SigningPrivate,
	})
	if err != nil {
		return err
	}
	defer memzero.Zero(raw)

	sealed, err := sealPrivate(s.passphrase, s.kdf,
		recordBinding(keys.UserID, keys.EncapsulationPublic, keys.SigningPublic), raw)
	if err != nil {
		return fmt.Errorf("seal private keys: %w", err)
	}

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO identity_keys (user_id, encapsulation_public, signing_public, private_sealed, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			encapsulation_public = excluded.encapsulation_public,
			signing_public       = excluded.signing_public,
			private_sealed       = excluded.private_sealed`,
		string(keys.UserID), keys.EncapsulationPublic, keys.SigningPublic, sealed, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save keys: %w", err)
	}
	return nil
}

// LoadKeys reads and unseals the keys for user. ok is false when no record exists.
func (s *KeyStore) LoadKeys(ctx context.Context, user domain.UserID) (domain.IdentityKeys, bool, error) {
	var (
		encPub, signPub, sealed []byte
	)
	err := s.db.db.QueryRowContext(ctx, `
		SELECT encapsulation_public, signing_public, private_sealed
		FROM identity_keys WHERE user_id = ?`, string(user),
	).Scan(&encPub, &signPub, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdentityKeys{}, false, nil
	}
	if err != nil {
		return domain.IdentityKeys{}, false, fmt.Errorf("load keys: %w", err)
	}

	raw, err := openPrivate(s.passphrase, recordBinding(user, encPub, signPub), sealed)
	if err != nil {
		return domain.IdentityKeys{}, false, err
	}
	defer memzero.Zero(raw)

	var priv privateHalves
	if err := json.Unmarshal(raw, &priv); err != nil {
		return domain.IdentityKeys{}, false, fmt.Errorf("decode private keys: %w", err)
	}
	return domain.IdentityKeys{
		UserID:               user,
		EncapsulationPublic:  encPub,
		EncapsulationPrivate: priv.EncapsulationPrivate,
		SigningPublic:        signPub,
		SigningPrivate:       priv.SigningPrivate,
	}, true, nil
}

// Compile-time assertion that KeyStore implements domain.KeyStore.
var _ domain.KeyStore = (*KeyStore)(nil)
