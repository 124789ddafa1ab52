package cryptoutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_EncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	key, err := LoadOrCreateKey(filepath.Join(dir, "fernet.key"))
	require.NoError(t, err)

	token, err := key.Encrypt([]byte("hello, student"), 1_700_000_000)
	require.NoError(t, err)

	plaintext, err := key.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "hello, student", string(plaintext))
}

func TestKey_EncryptNeverRepeatsToken(t *testing.T) {
	dir := t.TempDir()
	key, err := LoadOrCreateKey(filepath.Join(dir, "fernet.key"))
	require.NoError(t, err)

	a, err := key.Encrypt([]byte("same plaintext"), 1_700_000_000)
	require.NoError(t, err)
	b, err := key.Encrypt([]byte("same plaintext"), 1_700_000_000)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "random IV must make identical plaintexts encrypt differently")
}

func TestKey_DecryptRejectsTamperedToken(t *testing.T) {
	dir := t.TempDir()
	key, err := LoadOrCreateKey(filepath.Join(dir, "fernet.key"))
	require.NoError(t, err)

	token, err := key.Encrypt([]byte("hello"), 1_700_000_000)
	require.NoError(t, err)

	tampered := []byte(token)
	tampered[len(tampered)-1] ^= 0x01

	_, err = key.Decrypt(string(tampered))
	assert.Error(t, err)
}

func TestLoadOrCreateKey_PersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fernet.key")

	k1, err := LoadOrCreateKey(path)
	require.NoError(t, err)

	k2, err := LoadOrCreateKey(path)
	require.NoError(t, err)

	token, err := k1.Encrypt([]byte("shared secret"), 1_700_000_000)
	require.NoError(t, err)

	plaintext, err := k2.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "shared secret", string(plaintext))
}
