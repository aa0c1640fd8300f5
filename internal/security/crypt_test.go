package security

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func TestSealOpen_RoundTrips(t *testing.T) {
	c, err := NewCrypter(testKey())
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("sk_live_secret"))
	require.NoError(t, err)

	plaintext, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk_live_secret", string(plaintext))
}

func TestOpen_RejectsTamperedCiphertext(t *testing.T) {
	c, err := NewCrypter(testKey())
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("sk_live_secret"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = c.Open(tampered)
	require.Error(t, err)
}

func TestOpen_RejectsWrongKey(t *testing.T) {
	c1, err := NewCrypter(testKey())
	require.NoError(t, err)
	other := base64.StdEncoding.EncodeToString(append(make([]byte, 31), 1))
	c2, err := NewCrypter(other)
	require.NoError(t, err)

	sealed, err := c1.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = c2.Open(sealed)
	require.Error(t, err)
}

func TestNewCrypter_RejectsWrongKeyLength(t *testing.T) {
	_, err := NewCrypter(base64.StdEncoding.EncodeToString([]byte("too-short")))
	require.Error(t, err)
}
