package mtproto

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/archtg/mtsender/bin"
	"github.com/archtg/mtsender/internal/tgtest"
	"github.com/archtg/mtsender/mt"
	"github.com/archtg/mtsender/rpc"
	"github.com/archtg/mtsender/tgerr"
)

// pingPongRequest is the real Send request used throughout these
// tests: ClassRequest, and its reply arrives as a bare mt.Pong rather
// than an rpc_result, matching keepalive.go's own pingRequest.
type pingPongRequest struct {
	pingID int64
}

func (p *pingPongRequest) Encode(b *bin.Buffer) error {
	b.PutID(pingConstructorID)
	b.PutLong(p.pingID)
	return nil
}

func (p *pingPongRequest) ClassType() rpc.ClassType { return rpc.ClassRequest }

func (p *pingPongRequest) ReadResult(*bin.Buffer) (any, error) { return nil, nil }

// rpcEchoRequest is a Send request whose reply arrives wrapped in an
// rpc_result, to exercise handleRPCResult.
type rpcEchoRequest struct{}

func (r *rpcEchoRequest) Encode(b *bin.Buffer) error {
	b.PutID(0x11223344)
	return nil
}

func (r *rpcEchoRequest) ClassType() rpc.ClassType { return rpc.ClassRequest }

func (r *rpcEchoRequest) ReadResult(b *bin.Buffer) (any, error) {
	return b.String()
}

type senderFixture struct {
	sender *Sender
	server *tgtest.Server
	pipe   *tgtest.Pipe
}

func newSenderFixture(t *testing.T, configure func(*Options)) *senderFixture {
	t.Helper()
	authKey := testAuthKey(t)
	pipe := tgtest.NewPipe()
	server := tgtest.NewServer(authKey, pipe)

	opts := Options{
		AuthKey:       authKey,
		NewConnection: func() Connection { return pipe.AsConnection() },
		RetryDelay:    time.Millisecond,
	}
	if configure != nil {
		configure(&opts)
	}
	s := New(opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))

	return &senderFixture{sender: s, server: server, pipe: pipe}
}

func TestSenderRPCRoundTripViaPong(t *testing.T) {
	f := newSenderFixture(t, nil)

	type sendResult struct {
		v   any
		err error
	}
	done := make(chan sendResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		v, err := f.sender.Send(ctx, &pingPongRequest{pingID: 42})
		done <- sendResult{v, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := f.server.RecvClient(ctx)
	require.NoError(t, err)

	require.NoError(t, f.server.Reply(ctx, &mt.Pong{MsgID: msg.MsgID, PingID: 42}))

	res := <-done
	require.NoError(t, res.err)
	pong, ok := res.v.(*mt.Pong)
	require.True(t, ok)
	require.Equal(t, int64(42), pong.PingID)
	require.Zero(t, f.sender.engine.Len())
}

func TestSenderRPCResultRoundTrip(t *testing.T) {
	f := newSenderFixture(t, nil)

	type sendResult struct {
		v   any
		err error
	}
	done := make(chan sendResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		v, err := f.sender.Send(ctx, &rpcEchoRequest{})
		done <- sendResult{v, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := f.server.RecvClient(ctx)
	require.NoError(t, err)

	var body bin.Buffer
	body.PutString("echoed")
	require.NoError(t, f.server.Reply(ctx, &mt.RPCResult{ReqMsgID: msg.MsgID, Body: body.Buf}))

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, "echoed", res.v)
}

func TestSenderBadServerSaltTriggersResendWithNewMsgID(t *testing.T) {
	f := newSenderFixture(t, nil)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := f.sender.Send(ctx, &pingPongRequest{pingID: 1})
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first, err := f.server.RecvClient(ctx)
	require.NoError(t, err)

	require.NoError(t, f.server.Reply(ctx, &mt.BadServerSalt{
		BadMsgID:      first.MsgID,
		NewServerSalt: 0xDEADBEEF,
	}))

	second, err := f.server.RecvClient(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first.MsgID, second.MsgID)
	require.Equal(t, int64(0xDEADBEEF), f.sender.state.Salt())

	select {
	case err := <-done:
		t.Fatalf("request resolved early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, f.server.Reply(ctx, &mt.Pong{MsgID: second.MsgID, PingID: 1}))
	require.NoError(t, <-done)
}

func TestSenderBadMsgNotificationCode48Rejects(t *testing.T) {
	f := newSenderFixture(t, nil)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := f.sender.Send(ctx, &pingPongRequest{pingID: 7})
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := f.server.RecvClient(ctx)
	require.NoError(t, err)

	require.NoError(t, f.server.Reply(ctx, &mt.BadMsgNotification{
		BadMsgID:  msg.MsgID,
		ErrorCode: 48,
	}))

	err = <-done
	var badMsg *tgerr.BadMessageError
	require.ErrorAs(t, err, &badMsg)
	require.Equal(t, 48, badMsg.Code)
	require.Zero(t, f.sender.engine.Len())
}

func TestSenderAuthKey404OnNonMainSenderSkipsReconnect(t *testing.T) {
	var brokenDC int
	var brokenCount int
	var updates []UpdateConnectionState

	f := newSenderFixture(t, func(o *Options) {
		o.IsMainSender = false
		o.DC.DCID = 3
		o.OnConnectionBreak = func(dcID int) {
			brokenCount++
			brokenDC = dcID
		}
		o.UpdateCallback = func(st UpdateConnectionState) {
			updates = append(updates, st)
		}
	})

	// A 4-byte frame carrying -404 is the transport-level quick-error
	// packet a server sends when it no longer recognizes our auth key.
	errPacket := make([]byte, 4)
	binary.LittleEndian.PutUint32(errPacket, uint32(int32(-404)))
	require.NoError(t, f.server.SendRaw(context.Background(), errPacket))

	require.Eventually(t, func() bool { return !f.sender.IsConnected() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return brokenCount == 1 }, time.Second, time.Millisecond)
	require.Equal(t, 3, brokenDC)
	for _, st := range updates {
		require.NotEqual(t, StateBroken, st)
	}
}

func TestSenderDisconnectFailsPendingAndQueued(t *testing.T) {
	f := newSenderFixture(t, func(o *Options) {
		o.DisableAutoReconnect = true
	})

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := f.sender.Send(ctx, &pingPongRequest{pingID: 99})
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.server.RecvClient(ctx)
	require.NoError(t, err)

	require.NoError(t, f.sender.Disconnect())

	err = <-done
	require.ErrorIs(t, err, errDisconnected)
	require.False(t, f.sender.IsConnected())
}

// TestSenderReconnectResendsPendingInOriginalOrder is S6: three
// requests reach pending-state, the connection dies, and reconnect
// must requeue and resend them in their original order through a
// brand-new connection, firing autoReconnectCallback exactly once.
// Because the send/receive loops run as real goroutines rather than
// one cooperative task, this asserts the eventually-observable outcome
// (all three delivered, in order, to the new connection) rather than
// trying to freeze the instant pending-state is empty mid-handoff.
func TestSenderReconnectResendsPendingInOriginalOrder(t *testing.T) {
	authKey := testAuthKey(t)

	var mu sync.Mutex
	var servers []*tgtest.Server
	var pipes []*tgtest.Pipe
	newConn := func() Connection {
		pipe := tgtest.NewPipe()
		server := tgtest.NewServer(authKey, pipe)
		mu.Lock()
		servers = append(servers, server)
		pipes = append(pipes, pipe)
		mu.Unlock()
		return pipe.AsConnection()
	}

	var reconnectCalls atomic.Int32
	opts := Options{
		AuthKey:       authKey,
		NewConnection: newConn,
		RetryDelay:    time.Millisecond,
		AutoReconnectCallback: func() {
			reconnectCalls.Inc()
		},
	}
	s := New(opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))

	states := make([]*rpc.RequestState, 3)
	for i := range states {
		st, err := rpc.NewRequestState(&pingPongRequest{pingID: int64(i)})
		require.NoError(t, err)
		states[i] = st
		s.packer.Append(st)
	}

	require.Eventually(t, func() bool { return s.engine.Len() == 3 }, time.Second, time.Millisecond)

	mu.Lock()
	firstPipe := pipes[0]
	mu.Unlock()
	require.NoError(t, firstPipe.Close())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(servers) == 2
	}, 3*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return reconnectCalls.Load() == 1 }, time.Second, time.Millisecond)

	mu.Lock()
	secondServer := servers[1]
	mu.Unlock()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	// All three states are requeued before the fresh send loop starts,
	// so the packer drains them into one container, in original order.
	msg, err := secondServer.RecvClient(ctx2)
	require.NoError(t, err)
	obj, err := decodeBody(msg.Body)
	require.NoError(t, err)
	container, ok := obj.(*mt.MessageContainer)
	require.True(t, ok)
	require.Len(t, container.Messages, len(states))
	for i, m := range container.Messages {
		require.Equal(t, states[i].Data, m.Body)
		require.NoError(t, secondServer.Reply(ctx2, &mt.Pong{MsgID: m.MsgID, PingID: int64(i)}))
	}

	for _, st := range states {
		v, err := st.Promise().Wait(ctx2)
		require.NoError(t, err)
		require.IsType(t, &mt.Pong{}, v)
	}
	require.Equal(t, int32(1), reconnectCalls.Load())
}

