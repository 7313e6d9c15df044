package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) *AuthKey {
	t.Helper()
	raw := make([]byte, KeyLength)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	var k AuthKey
	k.SetKey(raw)
	return &k
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	k := randomKey(t)
	plaintext := []byte("rpc_result carrying a Pong reply")

	ciphertext, err := k.EncryptMessageData(plaintext)
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)

	got, err := k.DecryptMessageData(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got[:len(plaintext)])
}

func TestDecryptWrongKeyIsSecurityError(t *testing.T) {
	k1 := randomKey(t)
	k2 := randomKey(t)

	ciphertext, err := k1.EncryptMessageData([]byte("hello"))
	require.NoError(t, err)

	_, err = k2.DecryptMessageData(ciphertext)
	require.Error(t, err)
	var secErr *SecurityError
	require.ErrorAs(t, err, &secErr)
}

func TestEmptyKeyRejectsEncrypt(t *testing.T) {
	var k AuthKey
	require.True(t, k.Empty())
	_, err := k.EncryptMessageData([]byte("x"))
	require.Error(t, err)
}
