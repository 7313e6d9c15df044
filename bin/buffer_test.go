package bin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferRoundTrip(t *testing.T) {
	var b Buffer
	b.PutID(0x73f1f8dc)
	b.PutLong(123456789)
	b.PutInt(42)
	b.PutString("hello, mtproto")
	b.PutBytes([]byte{1, 2, 3, 4, 5})

	id, err := b.ConsumeID()
	require.NoError(t, err)
	require.EqualValues(t, 0x73f1f8dc, id)

	long, err := b.Long()
	require.NoError(t, err)
	require.EqualValues(t, 123456789, long)

	i, err := b.Int()
	require.NoError(t, err)
	require.EqualValues(t, 42, i)

	s, err := b.String()
	require.NoError(t, err)
	require.Equal(t, "hello, mtproto", s)

	raw, err := b.Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, raw)

	require.Zero(t, b.Len())
}

func TestBufferPeekID(t *testing.T) {
	var b Buffer
	b.PutID(0xf35c6d01)
	b.PutLong(1)

	id, err := b.PeekID()
	require.NoError(t, err)
	require.EqualValues(t, 0xf35c6d01, id)
	require.EqualValues(t, 12, b.Len(), "peek must not consume")
}

func TestBufferTooShort(t *testing.T) {
	var b Buffer
	b.Buf = []byte{1, 2}
	_, err := b.Long()
	require.ErrorIs(t, err, ErrBufferTooShort)
}

func TestBufferVectorHeader(t *testing.T) {
	var b Buffer
	b.PutVectorHeader(3)
	n, err := b.VectorHeader()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
