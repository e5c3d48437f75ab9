package secrets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCipherSealsAndOpens(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	key, err := DeriveKey("correct horse", salt)
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)

	sealed, err := c.Encrypt("NETFLIX.COM 866-579-7172")
	require.NoError(t, err)
	require.True(t, IsEncrypted(sealed))
	require.NotContains(t, sealed, "NETFLIX")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, "NETFLIX.COM 866-579-7172", plain)

	passthrough, err := c.Decrypt("SPOTIFY")
	require.NoError(t, err)
	require.Equal(t, "SPOTIFY", passthrough)
}

func TestCipherSealsPrefixedPlaintext(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	key, err := DeriveKey("correct horse", salt)
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)

	const raw = "enc:VENDOR REF 42"
	sealed, err := c.Encrypt(raw)
	require.NoError(t, err)
	require.NotEqual(t, raw, sealed)
	require.NotContains(t, sealed, "VENDOR")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, raw, plain)

	twice, err := c.Encrypt(sealed)
	require.NoError(t, err)
	require.NotEqual(t, sealed, twice)
	inner, err := c.Decrypt(twice)
	require.NoError(t, err)
	require.Equal(t, sealed, inner)
}

func TestWrongKeyAndPlainCodec(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	k1, err := DeriveKey("one", salt)
	require.NoError(t, err)
	k2, err := DeriveKey("two", salt)
	require.NoError(t, err)
	c1, _ := NewCipher(k1)
	c2, _ := NewCipher(k2)

	sealed, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(sealed)
	require.ErrorIs(t, err, ErrBadCiphertext)

	_, err = Plain{}.Decrypt(sealed)
	require.ErrorIs(t, err, ErrNoKey)

	_, err = DeriveKey("", salt)
	require.Error(t, err)
}
