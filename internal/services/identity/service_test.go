package identity_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/services/identity"
	"pqchat/internal/services/keyvault"
	"pqchat/internal/store"
)

type recordingDirectory struct {
	published map[domain.UserID]domain.KeysDocument
}

func (d *recordingDirectory) PublishKeys(_ context.Context, user domain.UserID, doc domain.KeysDocument) error {
	if d.published == nil {
		d.published = make(map[domain.UserID]domain.KeysDocument)
	}
	d.published[user] = doc
	return nil
}

func (d *recordingDirectory) FetchPeerKeys(context.Context, domain.UserID) (domain.KeysDocument, error) {
	return domain.KeysDocument{}, domain.ErrKeyNotFound
}

func (d *recordingDirectory) FetchPresence(context.Context, domain.UserID) (domain.PresenceDocument, error) {
	return domain.PresenceDocument{}, nil
}

func newService(t *testing.T) (*identity.Service, *recordingDirectory) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), store.DatabaseFilename))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	vault := keyvault.New(store.NewKeyStore(db, "Identity-Pass-1!"), nil, nil)
	dir := &recordingDirectory{}
	return identity.New(vault, dir, nil), dir
}

func TestGenerate_ThenFingerprintAndPublish(t *testing.T) {
	ctx := context.Background()
	svc, dir := newService(t)

	keys, fp, err := svc.Generate(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, fp.String(), 20)

	again, err := svc.Fingerprint(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, fp, again)

	require.NoError(t, svc.Publish(ctx, "alice"))
	doc := dir.published["alice"]
	require.Equal(t, crypto.B64(keys.EncapsulationPublic), doc.KyberPublicKey)
	require.Equal(t, crypto.B64(keys.SigningPublic), doc.DilithiumPublicKey)
}

func TestGenerate_RefusesToReplace(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, _, err := svc.Generate(ctx, "alice")
	require.NoError(t, err)
	_, _, err = svc.Generate(ctx, "alice")
	require.ErrorIs(t, err, identity.ErrIdentityExists)
}

func TestCheckPassphrase(t *testing.T) {
	require.ErrorIs(t, identity.CheckPassphrase("short"), identity.ErrWeakPassphrase)
	require.ErrorIs(t, identity.CheckPassphrase("alllowercaseletters"), identity.ErrWeakPassphrase)
	require.NoError(t, identity.CheckPassphrase("Str0ng-Enough!"))
}
