package wallet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0000000000000000000000000000000000000000000000000000000000000001"

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	secret := []byte("the deposit wallet secret key material")
	blob, err := c.Encrypt(secret)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "secret key")

	plain, err := c.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, secret, plain)
}

func TestCipherRejectsBadKeys(t *testing.T) {
	_, err := NewCipher("not-hex")
	assert.Error(t, err)

	_, err = NewCipher("deadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestCipherRejectsTamperedCiphertext(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	blob, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xff
	_, err = c.Decrypt(blob)
	assert.Error(t, err)
}

func TestCipherRejectsShortCiphertext(t *testing.T) {
	c, err := NewCipher(strings.Repeat("ab", 32))
	require.NoError(t, err)

	_, err = c.Decrypt([]byte{1, 2, 3})
	assert.Error(t, err)
}
