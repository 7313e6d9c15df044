package mtproto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/archtg/mtsender/bin"
	"github.com/archtg/mtsender/mt"
	"github.com/archtg/mtsender/rpc"
)

type echoRequest struct {
	payload []byte
	class   rpc.ClassType
}

func (e *echoRequest) Encode(b *bin.Buffer) error {
	b.Buf = append(b.Buf, e.payload...)
	return nil
}

func (e *echoRequest) ClassType() rpc.ClassType { return e.class }

func (e *echoRequest) ReadResult(*bin.Buffer) (any, error) { return nil, nil }

func newState(t *testing.T) *State {
	t.Helper()
	return NewState(testAuthKey(t))
}

func TestPackerSingleRequestIsNotContainerized(t *testing.T) {
	p := NewMessagePacker(newState(t))
	st, err := rpc.NewRequestState(&echoRequest{payload: []byte("ping"), class: rpc.ClassRequest})
	require.NoError(t, err)
	p.Append(st)

	batch, err := p.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.States, 1)
	require.Equal(t, []byte("ping"), batch.Data)
	require.NotZero(t, st.MsgID)
}

func TestPackerBatchesConcurrentAppendsIntoOneContainer(t *testing.T) {
	p := NewMessagePacker(newState(t))
	var states []*rpc.RequestState
	for i := 0; i < 3; i++ {
		st, err := rpc.NewRequestState(&echoRequest{payload: []byte{byte(i)}, class: rpc.ClassRequest})
		require.NoError(t, err)
		states = append(states, st)
	}
	p.Extend(states)

	batch, err := p.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.States, 3)

	container := &mt.MessageContainer{}
	require.NoError(t, container.Decode(&bin.Buffer{Buf: batch.Data[4:]})) // skip constructor id
	require.Len(t, container.Messages, 3)
	for i, m := range container.Messages {
		require.Equal(t, []byte{byte(i)}, m.Body)
	}
}

func TestPackerRejectAllFailsQueuedRequests(t *testing.T) {
	p := NewMessagePacker(newState(t))
	st, err := rpc.NewRequestState(&echoRequest{payload: []byte("x"), class: rpc.ClassRequest})
	require.NoError(t, err)
	p.Append(st)

	p.RejectAll()

	_, err = st.Promise().Wait(context.Background())
	require.ErrorIs(t, err, errDisconnected)
}
