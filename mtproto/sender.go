package mtproto

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/archtg/mtsender/crypto"
	"github.com/archtg/mtsender/rpc"
)

// ackTracker is the pending-ack set and the cap-10 last-acks ring from
// spec.md §3's data model. The ring holds the actual *rpc.RequestState
// of the most recent MsgsAck notifications the sender has sent (not a
// dedup set of incoming ids): a bad_server_salt or bad_msg_notification
// can name one of our own ack messages, and popStates needs the real
// RequestState back to re-enqueue it.
type ackTracker struct {
	mu      sync.Mutex
	pending []int64
	ring    [10]*rpc.RequestState
	ringLen int
	ringPos int
}

// add records msgID as unacked, deduping against whatever is already
// waiting to be flushed.
func (a *ackTracker) add(msgID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range a.pending {
		if id == msgID {
			return
		}
	}
	a.pending = append(a.pending, msgID)
}

// drain removes and returns every pending id, or nil if the set is
// empty.
func (a *ackTracker) drain() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) == 0 {
		return nil
	}
	out := a.pending
	a.pending = nil
	return out
}

// remember pushes a just-sent MsgsAck RequestState onto the ring,
// evicting the oldest entry beyond capacity 10. Called once the state
// has its MsgID assigned.
func (a *ackTracker) remember(st *rpc.RequestState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ring[a.ringPos] = st
	a.ringPos = (a.ringPos + 1) % len(a.ring)
	if a.ringLen < len(a.ring) {
		a.ringLen++
	}
}

// find scans the ring for the RequestState whose assigned msg-id
// equals msgID.
func (a *ackTracker) find(msgID int64) (*rpc.RequestState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < a.ringLen; i++ {
		if st := a.ring[i]; st != nil && st.MsgID == msgID {
			return st, true
		}
	}
	return nil, false
}

// Sender is the public contract from spec.md §4.4: Connect,
// IsConnected, Send, Disconnect, wired around one MTProtoState/
// MessagePacker pair and a pending-request engine. It has no cyclic
// references to its own collaborators and holds no package-level
// state, per spec.md §9.
type Sender struct {
	opts Options

	state  *State
	packer *MessagePacker
	engine *rpc.Engine
	acks   ackTracker

	mu            sync.Mutex
	conn          Connection
	cancel        context.CancelFunc
	connected     atomic.Bool
	disconnecting atomic.Bool

	log *zap.Logger
}

var (
	errNotConnected     = errors.New("mtproto: sender not connected")
	errAlreadyConnected = errors.New("mtproto: sender already connected")
)

// New creates a Sender. opts.AuthKey, if non-nil, is installed
// immediately so a reconnect or a pre-established session skips the
// handshake; callers that need a fresh key should leave it nil and
// supply opts.Authenticator instead.
func New(opts Options) *Sender {
	opts.setDefaults()

	authKey := opts.AuthKey
	if authKey == nil {
		authKey = &crypto.AuthKey{}
	}
	state := NewState(authKey)
	state.SetSecurityChecks(!opts.DisableSecurityChecks)

	return &Sender{
		opts:   opts,
		state:  state,
		packer: NewMessagePacker(state),
		engine: rpc.New(rpc.Options{Logger: opts.Logger, Clock: opts.Clock}),
		log:    opts.Logger,
	}
}

// IsConnected reports whether the send/receive loops are currently
// running against a live transport connection.
func (s *Sender) IsConnected() bool {
	return s.connected.Load()
}

// Send submits req and blocks until its reply arrives, ctx is done, or
// the sender disconnects. Notifications (ClassNotification) resolve as
// soon as the bytes are handed to the connection, never waiting on a
// server reply.
func (s *Sender) Send(ctx context.Context, req rpc.Request) (any, error) {
	if !s.IsConnected() {
		return nil, errNotConnected
	}
	state, err := rpc.NewRequestState(req)
	if err != nil {
		return nil, errors.Wrap(err, "build request state")
	}
	s.packer.Append(state)
	return state.Promise().Wait(ctx)
}

// Disconnect tears down the transport connection, fails every pending
// and queued request, and stops the send/receive loops. Unlike a loop
// exiting on its own, Disconnect never triggers auto-reconnect.
func (s *Sender) Disconnect() error {
	s.disconnecting.Store(true)

	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	s.cancel = nil
	s.conn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.connected.Store(false)

	var closeErr error
	if conn != nil {
		closeErr = conn.Close()
	}

	s.packer.RejectAll()
	for _, st := range s.engine.Drain() {
		st.Reject(errDisconnected)
	}
	s.opts.UpdateCallback(StateDisconnected)
	return closeErr
}

// ackLater records msgID as needing acknowledgement, then immediately
// flushes the pending-ack set. sendLoop also flushes at the head of
// every iteration (spec.md §4.6 step 1); flushing here too is what
// actually wakes a send loop parked in packer.Get with nothing else
// queued, so the flush reaches the wire without waiting on unrelated
// traffic — by the time any later send-loop iteration completes, the
// pending-ack set is already empty (spec.md §8 testable property 5).
func (s *Sender) ackLater(msgID int64) {
	s.acks.add(msgID)
	s.flushPendingAcks()
}

// flushPendingAcks drains the pending-ack set and, if it was
// non-empty, enqueues the drained ids as a single MsgsAck notification
// (spec.md §4.6 step 1). A no-op when nothing is pending, so it is
// safe to call both reactively from ackLater and at the top of every
// sendLoop iteration.
func (s *Sender) flushPendingAcks() {
	ids := s.acks.drain()
	if len(ids) == 0 {
		return
	}
	state, err := rpc.NewRequestState(&ackRequest{ack: ids})
	if err != nil {
		s.log.Warn("failed to build msgs_ack", zap.Error(err))
		return
	}
	s.packer.Append(state)
}
