package encryption

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func TestSettingsEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewWithKey(testKey(), "local")
	require.NoError(t, err)

	sealed, err := enc.Encrypt("secret-word")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(sealed))
	assert.True(t, strings.HasPrefix(sealed, "$enc$v1$local$"))
	assert.NotContains(t, sealed, "secret-word")

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret-word", opened)

	again, err := enc.Encrypt("secret-word")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ between calls")
}

func TestSettingsEncryptor_PlainValuesPassThrough(t *testing.T) {
	enc, err := NewWithKey(testKey(), "local")
	require.NoError(t, err)

	out, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", out)

	out, err = enc.Decrypt("merchant@example.com")
	require.NoError(t, err)
	assert.Equal(t, "merchant@example.com", out)
}

func TestSettingsEncryptor_Tampered(t *testing.T) {
	enc, err := NewWithKey(testKey(), "local")
	require.NoError(t, err)

	_, err = enc.Decrypt("$enc$v1$local")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = enc.Decrypt("$enc$v1$local$" + base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	other, err := NewWithKey(bytes.Repeat([]byte{9}, 32), "other")
	require.NoError(t, err)
	sealed, err := other.Encrypt("value")
	require.NoError(t, err)

	_, err = enc.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNewSettingsEncryptor_LocalKey(t *testing.T) {
	enc, err := NewSettingsEncryptor(context.Background(), Config{
		LocalKey: base64.StdEncoding.EncodeToString(testKey()),
	})
	require.NoError(t, err)
	assert.Equal(t, "local", enc.keyVersion)

	_, err = NewSettingsEncryptor(context.Background(), Config{LocalKey: base64.StdEncoding.EncodeToString([]byte("short"))})
	assert.ErrorIs(t, err, ErrInvalidKeyLength)

	_, err = NewSettingsEncryptor(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
