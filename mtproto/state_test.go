package mtproto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/archtg/mtsender/crypto"
)

func testAuthKey(t *testing.T) *crypto.AuthKey {
	t.Helper()
	key := make([]byte, crypto.KeyLength)
	for i := range key {
		key[i] = byte(i)
	}
	authKey := &crypto.AuthKey{}
	authKey.SetKey(key)
	return authKey
}

func TestGetNewMsgIDMonotonicAndDivisibleByFour(t *testing.T) {
	s := NewState(testAuthKey(t))
	var last int64
	for i := 0; i < 1000; i++ {
		id := s.GetNewMsgID()
		require.Zero(t, id%4)
		require.Greater(t, id, last)
		last = id
	}
}

func TestNextSeqNoParity(t *testing.T) {
	s := NewState(testAuthKey(t))

	a := s.NextSeqNo(true)
	require.Equal(t, int32(1), a%2)

	even := s.NextSeqNo(false)
	require.Equal(t, int32(0), even%2)

	b := s.NextSeqNo(true)
	require.Greater(t, b, a)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	s := NewState(testAuthKey(t))
	s.SetSalt(123)

	body := []byte("hello mtproto")
	msgID := s.GetNewMsgID()
	seqNo := s.NextSeqNo(true)

	ciphertext, err := s.EncryptMessageData(msgID, seqNo, body)
	require.NoError(t, err)

	msg, err := s.DecryptMessageData(ciphertext)
	require.NoError(t, err)
	require.Equal(t, msgID, msg.MsgID)
	require.Equal(t, seqNo, msg.SeqNo)
	require.Equal(t, body, msg.Body)
}

func TestDecryptRejectsForeignSessionID(t *testing.T) {
	s := NewState(testAuthKey(t))
	other := NewState(s.AuthKey())

	ciphertext, err := other.EncryptMessageData(other.GetNewMsgID(), other.NextSeqNo(true), []byte("x"))
	require.NoError(t, err)

	_, err = s.DecryptMessageData(ciphertext)
	var secErr *crypto.SecurityError
	require.ErrorAs(t, err, &secErr)
}

func TestResetRollsSessionAndClearsSequence(t *testing.T) {
	s := NewState(testAuthKey(t))
	s.NextSeqNo(true)
	before := s.SessionID()

	s.Reset()
	require.NotEqual(t, before, s.SessionID())
	require.Equal(t, int32(0), s.NextSeqNo(false))
}
