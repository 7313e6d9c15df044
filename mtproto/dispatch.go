package mtproto

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/archtg/mtsender/bin"
	"github.com/archtg/mtsender/mt"
	"github.com/archtg/mtsender/rpc"
	"github.com/archtg/mtsender/tgerr"
)

// ackRequest is the fire-and-forget msgs_ack the sender batches up
// from ackLater; it never expects a reply.
type ackRequest struct {
	ack []int64
}

func (r *ackRequest) Encode(b *bin.Buffer) error {
	return (&mt.MsgsAck{MsgIDs: r.ack}).Encode(b)
}

func (r *ackRequest) ClassType() rpc.ClassType { return rpc.ClassNotification }

func (r *ackRequest) ReadResult(*bin.Buffer) (any, error) { return nil, nil }

// stateInfoRequest is the fire-and-forget MsgsStateInfo the sender
// replies with to a peer's MsgsStateReq/MsgResendReq: one 0x01
// ("present") status byte per requested msg-id, per spec.md §4.8.
type stateInfoRequest struct {
	reqMsgID int64
	count    int
}

func (r *stateInfoRequest) Encode(b *bin.Buffer) error {
	info := make([]byte, r.count)
	for i := range info {
		info[i] = 0x01
	}
	return (&mt.MsgsStateInfo{ReqMsgID: r.reqMsgID, Info: info}).Encode(b)
}

func (r *stateInfoRequest) ClassType() rpc.ClassType { return rpc.ClassNotification }

func (r *stateInfoRequest) ReadResult(*bin.Buffer) (any, error) { return nil, nil }

// enqueueStateInfo builds and queues the MsgsStateInfo reply to a
// MsgsStateReq/MsgResendReq addressed to reqMsgID, reporting every
// requested id as present (spec.md §4.8).
func (s *Sender) enqueueStateInfo(reqMsgID int64, count int) {
	state, err := rpc.NewRequestState(&stateInfoRequest{reqMsgID: reqMsgID, count: count})
	if err != nil {
		s.log.Warn("failed to build msgs_state_info", zap.Error(err))
		return
	}
	s.packer.Append(state)
}

// popStates retrieves every RequestState associated with msgID: first
// as a request's own id, then as the id of the container that carried
// it, then as the msg-id of one of our own last 10 MsgsAck
// notifications. Matches _popStates (spec.md §4.9), needed because a
// bad_server_salt or bad_msg_notification can name any of the three —
// acks are fire-and-forget and never enter the pending-state engine,
// so the last-acks ring is the only place one can still be found.
func (s *Sender) popStates(msgID int64) []*rpc.RequestState {
	if st, ok := s.engine.Pop(msgID); ok {
		return []*rpc.RequestState{st}
	}
	if states := s.engine.PopByContainer(msgID); len(states) > 0 {
		return states
	}
	if st, ok := s.acks.find(msgID); ok {
		return []*rpc.RequestState{st}
	}
	return nil
}

// resolveNoReplyAcks resolves every pending state among msgIDs whose
// Request is an rpc.NoReplyRequest with true (spec.md §4.8: auth.LogOut
// "has no server reply" and is confirmed only by the MsgsAck naming
// it). Peek first, since an ordinary ClassRequest's msg-id can also
// appear in a MsgsAck — the server acks everything it receives, not
// just no-reply requests — and those must stay pending for their real
// rpc_result.
func (s *Sender) resolveNoReplyAcks(msgIDs []int64) {
	for _, id := range msgIDs {
		st, ok := s.engine.Peek(id)
		if !ok {
			continue
		}
		if _, ok := st.Request.(rpc.NoReplyRequest); ok {
			s.engine.Pop(id)
			st.Resolve(true)
		}
	}
}

// processMessage is _processMessage (spec.md §4.8): decode the body
// against the known constructor table and dispatch on its concrete
// type. Anything the jump table doesn't otherwise correlate to a
// pending request — an unrecognized constructor (spec.md §7's "log and
// continue" rule for TypeNotFoundError) or a recognized-but-unhandled
// one — is forwarded to Options.UpdateHandler as a server-pushed
// update and acked.
func (s *Sender) processMessage(msgID int64, seqNo int32, body []byte) {
	obj, err := decodeBody(body)
	if err != nil {
		var notFound *mt.TypeNotFoundError
		if errors.As(err, &notFound) {
			s.log.Debug("received message with unrecognized constructor; treated as opaque update",
				zap.Uint32("constructor", notFound.ID))
			s.opts.UpdateHandler(RawUpdate{ConstructorID: notFound.ID, Body: body})
			s.ackLater(msgID)
			return
		}
		s.log.Warn("failed to decode message body", zap.Error(err))
		return
	}

	switch v := obj.(type) {
	case *mt.MessageContainer:
		for _, m := range v.Messages {
			s.processMessage(m.MsgID, m.SeqNo, m.Body)
		}

	case *mt.GZIPPacked:
		inflated, err := gunzip(v.PackedData)
		if err != nil {
			s.log.Warn("failed to inflate gzip_packed message", zap.Error(err))
			return
		}
		s.processMessage(msgID, seqNo, inflated)

	case *mt.RPCResult:
		s.handleRPCResult(v)
		s.ackLater(msgID)

	case *mt.Pong:
		if st, ok := s.engine.Pop(v.MsgID); ok {
			st.Resolve(v)
		}

	case *mt.BadServerSalt:
		s.state.SetSalt(v.NewServerSalt)
		for _, st := range s.popStates(v.BadMsgID) {
			s.packer.Append(st)
		}

	case *mt.BadMsgNotification:
		s.handleBadMsgNotification(msgID, v)

	case *mt.MsgsAck:
		s.resolveNoReplyAcks(v.MsgIDs)

	case *mt.NewSessionCreated:
		s.state.SetSalt(v.ServerSalt)

	case *mt.MsgDetailedInfo:
		s.ackLater(v.AnswerMsgID)

	case *mt.MsgNewDetailedInfo:
		s.ackLater(v.AnswerMsgID)

	case *mt.FutureSalts:
		// TODO: auto-rotate to the next salt ahead of expiry instead of
		// only surfacing this to whoever is waiting on the request; see
		// DESIGN.md's open question on FutureSalts.
		if st, ok := s.engine.Pop(v.ReqMsgID); ok {
			st.Resolve(v)
		}

	case *mt.MsgsStateReq:
		s.enqueueStateInfo(msgID, len(v.MsgIDs))

	case *mt.MsgResendReq:
		s.enqueueStateInfo(msgID, len(v.MsgIDs))

	case *mt.MsgsStateInfo:
		if st, ok := s.engine.Pop(v.ReqMsgID); ok {
			st.Resolve(v)
		}

	case *mt.MsgsAllInfo:
		// Informational broadcast; nothing to correlate it against.

	default:
		s.log.Debug("forwarding unhandled message to update handler", zap.Uint32("constructor", obj.ConstructorID()))
		s.opts.UpdateHandler(RawUpdate{ConstructorID: obj.ConstructorID(), Object: obj})
		s.ackLater(msgID)
	}
}

// handleRPCResult resolves the pending request keyed by the result's
// req_msg_id with either its typed error or its decoded reply body.
func (s *Sender) handleRPCResult(v *mt.RPCResult) {
	st, ok := s.engine.Pop(v.ReqMsgID)
	if !ok {
		s.log.Debug("rpc_result for unknown or already-resolved request", zap.Int64("req_msg_id", v.ReqMsgID))
		return
	}
	if v.Error != nil {
		st.Reject(tgerr.RPCMessageToError(v.Error))
		return
	}
	result, err := st.Request.ReadResult(&bin.Buffer{Buf: v.Body})
	if err != nil {
		st.Reject(err)
		return
	}
	st.Resolve(result)
}

// handleBadMsgNotification implements the self-healing bad_msg_notification
// codes from spec.md §4.8: 16/17 correct the clock offset and resend,
// 32/33 nudge the sequence counter and resend, anything else rejects
// the affected requests with a typed *tgerr.BadMessageError. msgID is
// the server's own msg-id for the notification, whose timestamp is the
// reference for the clock correction.
func (s *Sender) handleBadMsgNotification(msgID int64, v *mt.BadMsgNotification) {
	states := s.popStates(v.BadMsgID)
	switch v.ErrorCode {
	case 16, 17:
		s.state.UpdateTimeOffset(msgID)
		s.packer.Extend(states)
	case 32:
		s.state.BumpSequence(64)
		s.packer.Extend(states)
	case 33:
		s.state.BumpSequence(-16)
		s.packer.Extend(states)
	default:
		err := &tgerr.BadMessageError{Code: int(v.ErrorCode)}
		for _, st := range states {
			st.Reject(err)
		}
	}
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
