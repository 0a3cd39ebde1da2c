package sealed_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pqchat/internal/crypto"
	"pqchat/internal/domain"
	"pqchat/internal/protocol/sealed"
)

type party struct {
	kemPub, kemPriv   []byte
	signPub, signPriv []byte
}

// makeParty returns a fresh ML-KEM and ML-DSA identity.
func makeParty(t *testing.T) party {
	t.Helper()
	var (
		p   party
		err error
	)
	p.kemPub, p.kemPriv, err = crypto.GenerateMLKEM()
	require.NoError(t, err)
	p.signPub, p.signPriv, err = crypto.GenerateMLDSA()
	require.NoError(t, err)
	return p
}

func TestSealOpen_RoundTrip(t *testing.T) {
	alice, bob := makeParty(t), makeParty(t)

	for _, m := range []string{"", "hello", "héllo wörld ✓", strings.Repeat("x", 64<<10)} {
		p, err := sealed.Seal(bob.kemPub, m, alice.signPriv)
		require.NoError(t, err)
		require.Len(t, p.Nonce, crypto.NonceSize)
		require.NotEmpty(t, p.Signature)

		got, err := sealed.Open(bob.kemPriv, p, alice.signPub)
		require.NoError(t, err)
		require.Equal(t, m, got.Plaintext)
		require.Equal(t, domain.VerificationValid, got.SignatureVerified)
	}
}

func TestOpen_TamperedFieldsFail(t *testing.T) {
	alice, bob := makeParty(t), makeParty(t)
	orig, err := sealed.Seal(bob.kemPub, "attack at dawn", alice.signPriv)
	require.NoError(t, err)

	fields := map[string]func(p *domain.SealedPayload) []byte{
		"encapsulationCiphertext": func(p *domain.SealedPayload) []byte { return p.EncapsulationCiphertext },
		"encryptedPayload":        func(p *domain.SealedPayload) []byte { return p.EncryptedPayload },
		"nonce":                   func(p *domain.SealedPayload) []byte { return p.Nonce },
	}
	for name, field := range fields {
		for _, pos := range []int{0, len(field(&orig)) / 2, len(field(&orig)) - 1} {
			p := clone(orig)
			field(&p)[pos] ^= 0x80

			got, err := sealed.Open(bob.kemPriv, p, alice.signPub)
			require.Error(t, err, "%s[%d]", name, pos)
			require.True(t, errors.Is(err, domain.ErrDecryptionFailure), "%s[%d]: %v", name, pos, err)
			require.Empty(t, got.Plaintext)
		}
	}
}

func TestOpen_WrongSigningKey(t *testing.T) {
	alice, bob, mallory := makeParty(t), makeParty(t), makeParty(t)

	p, err := sealed.Seal(bob.kemPub, "hi bob", alice.signPriv)
	require.NoError(t, err)

	got, err := sealed.Open(bob.kemPriv, p, mallory.signPub)
	require.NoError(t, err)
	require.Equal(t, "hi bob", got.Plaintext)
	require.Equal(t, domain.VerificationInvalid, got.SignatureVerified)
}

func TestOpen_MalformedSignatureFallsBack(t *testing.T) {
	alice, bob := makeParty(t), makeParty(t)

	p, err := sealed.Seal(bob.kemPub, "hi", alice.signPriv)
	require.NoError(t, err)
	p.Signature = p.Signature[:7]

	got, err := sealed.Open(bob.kemPriv, p, alice.signPub)
	require.NoError(t, err)
	require.Equal(t, "hi", got.Plaintext)
	require.Equal(t, domain.VerificationInvalid, got.SignatureVerified)

	got, err = sealed.Open(bob.kemPriv, p, []byte("not a key"))
	require.NoError(t, err)
	require.Equal(t, domain.VerificationInvalid, got.SignatureVerified)
}

func TestEncryptOnly_Unverified(t *testing.T) {
	alice, bob := makeParty(t), makeParty(t)

	p, err := sealed.EncryptOnly(bob.kemPub, "no signature")
	require.NoError(t, err)
	require.Empty(t, p.Signature)

	pt, err := sealed.DecryptOnly(bob.kemPriv, p)
	require.NoError(t, err)
	require.Equal(t, "no signature", pt)

	got, err := sealed.Open(bob.kemPriv, p, alice.signPub)
	require.NoError(t, err)
	require.Equal(t, domain.VerificationUnknown, got.SignatureVerified)
}

func TestOpen_WrongRecipient(t *testing.T) {
	alice, bob, carol := makeParty(t), makeParty(t), makeParty(t)

	p, err := sealed.Seal(bob.kemPub, "for bob", alice.signPriv)
	require.NoError(t, err)

	_, err = sealed.Open(carol.kemPriv, p, alice.signPub)
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)
}

func TestSeal_BadPeerKey(t *testing.T) {
	alice := makeParty(t)
	_, err := sealed.Seal([]byte("garbage"), "x", alice.signPriv)
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestProtocol_ContextCancelled(t *testing.T) {
	alice, bob := makeParty(t), makeParty(t)
	proto := sealed.New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := proto.Seal(ctx, bob.kemPub, "late", alice.signPriv)
	require.ErrorIs(t, err, context.Canceled)
}

func TestProtocol_RoundTrip(t *testing.T) {
	alice, bob := makeParty(t), makeParty(t)
	proto := sealed.New(nil)
	ctx := context.Background()

	p, err := proto.Seal(ctx, bob.kemPub, "via protocol", alice.signPriv)
	require.NoError(t, err)

	got, err := proto.Open(ctx, bob.kemPriv, p, alice.signPub)
	require.NoError(t, err)
	require.Equal(t, "via protocol", got.Plaintext)
	require.Equal(t, domain.VerificationValid, got.SignatureVerified)
}

func clone(p domain.SealedPayload) domain.SealedPayload {
	return domain.SealedPayload{
		EncapsulationCiphertext: append([]byte(nil), p.EncapsulationCiphertext...),
		EncryptedPayload:        append([]byte(nil), p.EncryptedPayload...),
		Nonce:                   append([]byte(nil), p.Nonce...),
		Signature:               append([]byte(nil), p.Signature...),
	}
}
