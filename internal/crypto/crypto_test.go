package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := NewBox([][]byte{randomKey(t)})
	require.NoError(t, err)

	token, err := box.Encrypt("hello world")
	require.NoError(t, err)
	require.NotEqual(t, "hello world", token)
	require.Contains(t, token, "enc:")

	plain, err := box.Decrypt(token)
	require.NoError(t, err)
	require.Equal(t, "hello world", plain)
}

func TestDecryptWithRotatedKeys(t *testing.T) {
	oldKey := randomKey(t)
	newKey := randomKey(t)

	oldBox, err := NewBox([][]byte{oldKey})
	require.NoError(t, err)
	token, err := oldBox.Encrypt("historic message")
	require.NoError(t, err)

	// New primary, old key kept for history.
	rotated, err := NewBox([][]byte{newKey, oldKey})
	require.NoError(t, err)
	plain, err := rotated.Decrypt(token)
	require.NoError(t, err)
	require.Equal(t, "historic message", plain)
}

func TestDecryptNoKeyMatched(t *testing.T) {
	a, err := NewBox([][]byte{randomKey(t)})
	require.NoError(t, err)
	b, err := NewBox([][]byte{randomKey(t)})
	require.NoError(t, err)

	token, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(token)
	require.ErrorIs(t, err, ErrNoKeyMatched)
}

func TestDecryptPlaintextPassthrough(t *testing.T) {
	box, err := NewBox([][]byte{randomKey(t)})
	require.NoError(t, err)

	plain, err := box.Decrypt("never encrypted")
	require.NoError(t, err)
	require.Equal(t, "never encrypted", plain)
}

func TestNewBoxRejectsBadKey(t *testing.T) {
	_, err := NewBox([][]byte{{1, 2, 3}})
	require.Error(t, err)

	_, err = NewBox(nil)
	require.Error(t, err)
}
