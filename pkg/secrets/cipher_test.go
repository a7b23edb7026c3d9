package secrets_test

import (
	"bytes"
	"testing"

	"github.com/spotwall/radbridge/pkg/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticKeyCipherRoundTrip(t *testing.T) {
	c, err := secrets.NewStaticKeyCipher(bytes.Repeat([]byte{0x42}, secrets.KeySize))
	require.NoError(t, err)

	for _, plain := range []string{"", "hunter2", "pässwörd ütf8 ✓"} {
		enc, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, enc)

		dec, err := c.Decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, plain, dec)
	}
}

func TestStaticKeyCipherNoncesDiffer(t *testing.T) {
	c, err := secrets.NewStaticKeyCipher(bytes.Repeat([]byte{0x42}, secrets.KeySize))
	require.NoError(t, err)

	a, err := c.Encrypt("secret")
	require.NoError(t, err)
	b, err := c.Encrypt("secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestStaticKeyCipherKeyMismatch(t *testing.T) {
	c1, err := secrets.NewStaticKeyCipher(bytes.Repeat([]byte{0x01}, secrets.KeySize))
	require.NoError(t, err)
	c2, err := secrets.NewStaticKeyCipher(bytes.Repeat([]byte{0x02}, secrets.KeySize))
	require.NoError(t, err)

	enc, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(enc)
	assert.ErrorIs(t, err, secrets.ErrDecrypt)
}

func TestStaticKeyCipherBadInput(t *testing.T) {
	c, err := secrets.NewStaticKeyCipher(bytes.Repeat([]byte{0x42}, secrets.KeySize))
	require.NoError(t, err)

	_, err = c.Decrypt("%%% not base64 %%%")
	assert.ErrorIs(t, err, secrets.ErrDecrypt)

	_, err = c.Decrypt("c2hvcnQ=")
	assert.ErrorIs(t, err, secrets.ErrDecrypt)

	_, err = secrets.NewStaticKeyCipher([]byte("too short"))
	assert.Error(t, err)
}
