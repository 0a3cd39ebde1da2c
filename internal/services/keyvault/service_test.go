package keyvault_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/services/keyvault"
	"pqchat/internal/store"
)

func freshKeys(t *testing.T, user domain.UserID) domain.IdentityKeys {
	t.Helper()
	k := domain.IdentityKeys{UserID: user}
	var err error
	k.EncapsulationPublic, k.EncapsulationPrivate, err = crypto.GenerateMLKEM()
	require.NoError(t, err)
	k.SigningPublic, k.SigningPrivate, err = crypto.GenerateMLDSA()
	require.NoError(t, err)
	return k
}

type fixture struct {
	dir    string
	keys   *store.KeyStore
	legacy *store.LegacyKeyFile
	vault  *keyvault.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, store.DatabaseFilename))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := fixture{
		dir:    dir,
		keys:   store.NewKeyStore(db, "Vault-Pass-123!"),
		legacy: store.NewLegacyKeyFile(dir),
	}
	f.vault = keyvault.New(f.keys, f.legacy, nil)
	return f
}

func TestVault_StoreLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	keys := freshKeys(t, "alice")

	require.NoError(t, f.vault.Store(ctx, keys))
	got, err := f.vault.Load(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, keys, got)
}

func TestVault_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.vault.Load(context.Background(), "alice")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestVault_MigratesLegacyKeys(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	legacy := freshKeys(t, "")
	require.NoError(t, f.legacy.SaveLegacyKeys(legacy))

	got, err := f.vault.Load(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.UserID("alice"), got.UserID)
	require.Equal(t, legacy.SigningPublic, got.SigningPublic)

	// Now present in the durable store without the legacy fallback.
	stored, ok, err := f.keys.LoadKeys(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, got, stored)
}

func TestVault_RejectsGarbage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bad := freshKeys(t, "alice")
	bad.SigningPrivate = []byte("nope")
	require.ErrorIs(t, f.vault.Store(ctx, bad), domain.ErrKeyNotFound)

	require.NoError(t, f.legacy.SaveLegacyKeys(bad))
	_, err := f.vault.Load(ctx, "alice")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}
