package mtproto

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/archtg/mtsender/bin"
	"github.com/archtg/mtsender/mt"
	"github.com/archtg/mtsender/rpc"
)

// maxMessageSize is the conservative single-message budget spec.md
// §4.2 calls out: "≈ 1 MiB conservative" rather than MTProto's actual
// limit, to leave headroom for container framing overhead.
const maxMessageSize = 1<<20 - 1024

// msgHeaderOverhead is the per-message bytes a container's header adds
// (msg_id + seq_no + size), used when estimating whether one more
// member still fits the budget.
const msgHeaderOverhead = 8 + 4 + 4

// Batch is what MessagePacker.Get returns: the outer msg-id/seq-no to
// encrypt under, the serialized plaintext (a lone request body, or a
// MessageContainer wrapping several), and the ordered list of states
// now bearing their assigned ids.
type Batch struct {
	MsgID  int64
	SeqNo  int32
	Data   []byte
	States []*rpc.RequestState
}

// MessagePacker is the send queue from spec.md §4.2: a blocking
// producer interface that batches queued RequestStates into one
// ciphertext-sized unit, wrapping more than one in a MessageContainer.
// Waiters wake on a notify channel rather than a sync.Cond so Get can
// also give up on ctx without losing whatever was queued.
type MessagePacker struct {
	state *State

	mu     sync.Mutex
	queue  []*rpc.RequestState
	notify chan struct{}
}

// NewMessagePacker creates a packer whose msg-id/seq-no assignment is
// backed by state.
func NewMessagePacker(state *State) *MessagePacker {
	return &MessagePacker{state: state, notify: make(chan struct{}, 1)}
}

func (p *MessagePacker) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Append enqueues a single RequestState.
func (p *MessagePacker) Append(state *rpc.RequestState) {
	p.mu.Lock()
	p.queue = append(p.queue, state)
	p.mu.Unlock()
	p.wake()
}

// Extend enqueues many RequestStates atomically.
func (p *MessagePacker) Extend(states []*rpc.RequestState) {
	if len(states) == 0 {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, states...)
	p.mu.Unlock()
	p.wake()
}

// errDisconnected is the rejection reason RejectAll attaches.
var errDisconnected = errors.New("mtproto: disconnected")

// RejectAll rejects every queued RequestState with a "disconnected"
// error and empties the queue, per spec.md §4.4 disconnect() and
// invariant 8 of §8.
func (p *MessagePacker) RejectAll() {
	p.mu.Lock()
	queue := p.queue
	p.queue = nil
	p.mu.Unlock()
	for _, s := range queue {
		s.Reject(errDisconnected)
	}
}

// Get blocks until at least one entry is queued or ctx is done. On
// success it greedily drains further entries while staying under
// maxMessageSize, assigns every drained state a fresh msg-id/seq-no,
// and wraps more than one in a MessageContainer. Cancelling ctx
// returns ctx.Err() without touching the queue, so nothing queued is
// lost.
//
// spec.md §4.2/§9 describe waking a blocked send loop across a
// reconnect with a shutdown sentinel pushed onto this queue. That
// pattern assumes one cooperatively scheduled send loop that outlives
// the reconnect; here reconnect only runs after the errgroup driving
// send/recv has already fully exited (Get's own ctx.Done() arm is what
// unblocks it), and a fresh sendLoop is spawned from scratch once
// Connect succeeds again. A sentinel pushed during reconnect would sit
// in the queue and be consumed as the new sendLoop's first item instead
// of the old one's last, so this packer carries no such sentinel.
func (p *MessagePacker) Get(ctx context.Context) (*Batch, error) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			break
		}
		p.mu.Unlock()
		select {
		case <-p.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	// p.mu is held with a non-empty queue.

	var drained []*rpc.RequestState
	size := 0
	for len(p.queue) > 0 {
		next := p.queue[0]
		cost := len(next.Data) + msgHeaderOverhead
		if len(drained) > 0 && size+cost > maxMessageSize {
			break
		}
		drained = append(drained, next)
		size += cost
		p.queue = p.queue[1:]
	}
	p.mu.Unlock()

	for _, s := range drained {
		s.MsgID = p.state.GetNewMsgID()
		s.SeqNo = p.state.NextSeqNo(s.Request.ClassType() == rpc.ClassRequest)
	}

	if len(drained) == 1 {
		return &Batch{MsgID: drained[0].MsgID, SeqNo: drained[0].SeqNo, Data: drained[0].Data, States: drained}, nil
	}

	container := &mt.MessageContainer{Messages: make([]mt.Message, len(drained))}
	for i, s := range drained {
		container.Messages[i] = mt.Message{MsgID: s.MsgID, SeqNo: s.SeqNo, Body: s.Data}
	}
	var buf bin.Buffer
	if err := container.Encode(&buf); err != nil {
		return nil, errors.Wrap(err, "encode container")
	}

	containerMsgID := p.state.GetNewMsgID()
	containerSeqNo := p.state.NextSeqNo(false)
	for _, s := range drained {
		s.ContainerID = containerMsgID
	}

	return &Batch{MsgID: containerMsgID, SeqNo: containerSeqNo, Data: buf.Buf, States: drained}, nil
}
