package mt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/archtg/mtsender/bin"
)

func roundTrip(t *testing.T, obj bin.Object, decoded bin.Object) {
	t.Helper()
	var b bin.Buffer
	require.NoError(t, obj.Encode(&b))
	id, err := b.ConsumeID()
	require.NoError(t, err)
	require.Equal(t, obj.ConstructorID(), id)
	require.NoError(t, decoded.Decode(&b))
	require.Zero(t, b.Len())
}

func TestMsgsAckRoundTrip(t *testing.T) {
	in := &MsgsAck{MsgIDs: []int64{1, 2, 3}}
	out := &MsgsAck{}
	roundTrip(t, in, out)
	require.Equal(t, in.MsgIDs, out.MsgIDs)
}

func TestBadServerSaltRoundTrip(t *testing.T) {
	in := &BadServerSalt{BadMsgID: 10, BadMsgSeqNo: 2, ErrorCode: 48, NewServerSalt: 0xDEADBEEF}
	out := &BadServerSalt{}
	roundTrip(t, in, out)
	require.Equal(t, in, out)
}

func TestPongRoundTrip(t *testing.T) {
	in := &Pong{MsgID: 99, PingID: 7}
	out := &Pong{}
	roundTrip(t, in, out)
	require.Equal(t, in, out)
}

func TestMessageContainerRoundTrip(t *testing.T) {
	in := &MessageContainer{Messages: []Message{
		{MsgID: 1, SeqNo: 1, Body: []byte("a")},
		{MsgID: 2, SeqNo: 3, Body: []byte("bb")},
	}}
	out := &MessageContainer{}
	roundTrip(t, in, out)
	require.Equal(t, in, out)
}

func TestRPCResultWithError(t *testing.T) {
	in := &RPCResult{ReqMsgID: 5, Error: &RPCError{ErrorCode: 400, ErrorMessage: "BAD_REQUEST"}}
	out := &RPCResult{}
	roundTrip(t, in, out)
	require.Equal(t, in.ReqMsgID, out.ReqMsgID)
	require.Equal(t, in.Error, out.Error)
}

func TestTypesConstructorMapCoversDispatchTable(t *testing.T) {
	m := TypesConstructorMap()
	for _, id := range []uint32{
		MessageContainerTypeID, RPCResultTypeID, GZIPPackedTypeID, PongTypeID,
		BadServerSaltTypeID, BadMsgNotificationTypeID, MsgsAckTypeID,
		MsgDetailedInfoTypeID, MsgNewDetailedInfoTypeID, NewSessionCreatedTypeID,
		FutureSaltsTypeID, MsgsStateReqTypeID, MsgResendReqTypeID,
		MsgsStateInfoTypeID, MsgsAllInfoTypeID,
	} {
		factory, ok := m[id]
		require.True(t, ok, "missing constructor %#x", id)
		require.NotNil(t, factory())
	}
}
