package crypto_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"pqchat/internal/crypto"
)

func TestMLKEM_EncapsulateDecapsulate(t *testing.T) {
	pub, priv, err := crypto.GenerateMLKEM()
	require.NoError(t, err)

	ct, ss, err := crypto.Encapsulate(pub)
	require.NoError(t, err)

	got, err := crypto.Decapsulate(priv, ct)
	require.NoError(t, err)
	require.Equal(t, ss, got)
}

func TestMLKEM_RejectsGarbageKey(t *testing.T) {
	_, _, err := crypto.Encapsulate([]byte("short"))
	require.ErrorIs(t, err, crypto.ErrInvalidEncapsulationKey)

	_, priv, err := crypto.GenerateMLKEM()
	require.NoError(t, err)
	_, err = crypto.Decapsulate(priv, []byte{1, 2, 3})
	require.ErrorIs(t, err, crypto.ErrInvalidEncapsulationCiphertext)
}

func TestMLDSA_SignVerify(t *testing.T) {
	pub, priv, err := crypto.GenerateMLDSA()
	require.NoError(t, err)

	sig, err := crypto.Sign(priv, []byte("hello"))
	require.NoError(t, err)

	ok, err := crypto.Verify(pub, []byte("hello"), sig)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = crypto.Verify(pub, []byte("hellO"), sig)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = crypto.Verify(pub, []byte("hello"), sig[:10])
	require.ErrorIs(t, err, crypto.ErrMalformedSignature)
}

func TestAEAD_TamperFails(t *testing.T) {
	key := bytes.Repeat([]byte{7}, crypto.AEADKeySize)
	nonce, err := crypto.NewNonce()
	require.NoError(t, err)

	ct, err := crypto.SealAEAD(key, nonce, []byte("secret"), nil)
	require.NoError(t, err)

	pt, err := crypto.OpenAEAD(key, nonce, ct, nil)
	require.NoError(t, err)
	require.Equal(t, "secret", string(pt))

	ct[0] ^= 0x01
	pt, err = crypto.OpenAEAD(key, nonce, ct, nil)
	require.True(t, errors.Is(err, crypto.ErrAuthenticationFailed))
	require.Nil(t, pt)
}

func TestDigest_LengthPrefixed(t *testing.T) {
	a := crypto.Digest([]byte("ab"), []byte("c"))
	b := crypto.Digest([]byte("a"), []byte("bc"))
	require.NotEqual(t, a, b)
}

func TestFingerprint_Short(t *testing.T) {
	fp := crypto.Fingerprint([]byte("kem"), []byte("sig"))
	require.Regexp(t, `^[0-9a-f]{4}( [0-9a-f]{4}){4}$`, fp)
	require.NotEqual(t, fp, crypto.Fingerprint([]byte("kem"), []byte("other")))
	require.NotEqual(t, fp, crypto.Fingerprint([]byte("ke"), []byte("msig")))
	require.Len(t, crypto.ContentFingerprint([]byte("pub")), 64)
	require.Empty(t, crypto.ContentFingerprint(nil))
}
