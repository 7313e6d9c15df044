// Package mt implements the fixed set of MTProto "meta" TL objects the
// sender core dispatches on: containers, acks, salt/session
// notifications, and the bad-msg family. It is hand-written rather than
// generated because the sender core's scope is this small closed set,
// not the full RPC method surface.
package mt

import (
	"github.com/go-faster/errors"

	"github.com/archtg/mtsender/bin"
)

// Constructor ids, as assigned by the MTProto schema.
const (
	MessageContainerTypeID  = 0x73f1f8dc
	RPCResultTypeID         = 0xf35c6d01
	GZIPPackedTypeID        = 0x3072cfa1
	PongTypeID              = 0x347773c5
	BadServerSaltTypeID     = 0xedab447b
	BadMsgNotificationTypeID = 0xa7eff811
	MsgsAckTypeID           = 0x62d6b459
	MsgDetailedInfoTypeID   = 0x276d3ec6
	MsgNewDetailedInfoTypeID = 0x809db6df
	NewSessionCreatedTypeID = 0x9ec20908
	FutureSaltsTypeID       = 0xae500895
	futureSaltTypeID        = 0x0949d9dc
	MsgsStateReqTypeID      = 0xda69fb52
	MsgResendReqTypeID      = 0x7d861a08
	MsgsStateInfoTypeID     = 0x04deb57d
	MsgsAllInfoTypeID       = 0x8cc0d131
	RPCErrorTypeID          = 0x2144ca19
)

// TypeNotFoundError is returned when a decoded constructor id is not in
// the dispatch table. The remaining bytes of the stream are still
// valid; the caller should log and continue.
type TypeNotFoundError struct {
	ID uint32
}

func (e *TypeNotFoundError) Error() string {
	return errors.Errorf("mt: unknown constructor %#x", e.ID).Error()
}

// Message is one entry of a MessageContainer: an inner message's
// header plus its still-encoded body.
type Message struct {
	MsgID int64
	SeqNo int32
	Body  []byte
}

// MessageContainer wraps several messages sent as one ciphertext.
type MessageContainer struct {
	Messages []Message
}

func (*MessageContainer) ConstructorID() uint32 { return MessageContainerTypeID }

func (c *MessageContainer) Encode(b *bin.Buffer) error {
	b.PutID(MessageContainerTypeID)
	b.PutInt(int32(len(c.Messages)))
	for _, m := range c.Messages {
		b.PutLong(m.MsgID)
		b.PutInt(m.SeqNo)
		b.PutInt(int32(len(m.Body)))
		b.Buf = append(b.Buf, m.Body...)
	}
	return nil
}

func (c *MessageContainer) Decode(b *bin.Buffer) error {
	n, err := b.Int()
	if err != nil {
		return errors.Wrap(err, "container count")
	}
	c.Messages = make([]Message, 0, n)
	for i := int32(0); i < n; i++ {
		msgID, err := b.Long()
		if err != nil {
			return errors.Wrap(err, "container msg id")
		}
		seqNo, err := b.Int()
		if err != nil {
			return errors.Wrap(err, "container seqno")
		}
		size, err := b.Int()
		if err != nil {
			return errors.Wrap(err, "container size")
		}
		if int32(len(b.Buf)) < size {
			return bin.ErrBufferTooShort
		}
		body := append([]byte(nil), b.Buf[:size]...)
		b.Buf = b.Buf[size:]
		c.Messages = append(c.Messages, Message{MsgID: msgID, SeqNo: seqNo, Body: body})
	}
	return nil
}

// GZIPPacked wraps a gzip-compressed inner message.
type GZIPPacked struct {
	PackedData []byte
}

func (*GZIPPacked) ConstructorID() uint32 { return GZIPPackedTypeID }

func (g *GZIPPacked) Encode(b *bin.Buffer) error {
	b.PutID(GZIPPackedTypeID)
	b.PutBytes(g.PackedData)
	return nil
}

func (g *GZIPPacked) Decode(b *bin.Buffer) error {
	v, err := b.Bytes()
	if err != nil {
		return errors.Wrap(err, "gzip_packed.packed_data")
	}
	g.PackedData = v
	return nil
}

// RPCResult carries a raw RPC reply or error, keyed by the request's
// msg-id. Body is left encoded; the caller parses it with the
// originating request's own reader, or as an RPCError if Error != nil.
type RPCResult struct {
	ReqMsgID int64
	Body     []byte
	Error    *RPCError
}

func (*RPCResult) ConstructorID() uint32 { return RPCResultTypeID }

func (r *RPCResult) Encode(b *bin.Buffer) error {
	b.PutID(RPCResultTypeID)
	b.PutLong(r.ReqMsgID)
	if r.Error != nil {
		return r.Error.Encode(b)
	}
	b.Buf = append(b.Buf, r.Body...)
	return nil
}

func (r *RPCResult) Decode(b *bin.Buffer) error {
	msgID, err := b.Long()
	if err != nil {
		return errors.Wrap(err, "rpc_result.req_msg_id")
	}
	r.ReqMsgID = msgID

	id, err := b.PeekID()
	if err != nil {
		return errors.Wrap(err, "rpc_result.body")
	}
	if id == RPCErrorTypeID {
		if _, err := b.ConsumeID(); err != nil {
			return err
		}
		r.Error = &RPCError{}
		if err := r.Error.Decode(b); err != nil {
			return errors.Wrap(err, "rpc_result.error")
		}
		return nil
	}
	r.Body = append([]byte(nil), b.Buf...)
	b.Buf = b.Buf[:0]
	return nil
}

// RPCError is the typed body of an rpc_error.
type RPCError struct {
	ErrorCode    int32
	ErrorMessage string
}

func (*RPCError) ConstructorID() uint32 { return RPCErrorTypeID }

func (e *RPCError) Encode(b *bin.Buffer) error {
	b.PutID(RPCErrorTypeID)
	b.PutInt(e.ErrorCode)
	b.PutString(e.ErrorMessage)
	return nil
}

func (e *RPCError) Decode(b *bin.Buffer) error {
	code, err := b.Int()
	if err != nil {
		return errors.Wrap(err, "rpc_error.error_code")
	}
	msg, err := b.String()
	if err != nil {
		return errors.Wrap(err, "rpc_error.error_message")
	}
	e.ErrorCode = code
	e.ErrorMessage = msg
	return nil
}

// Pong is the reply to a ping request.
type Pong struct {
	MsgID  int64
	PingID int64
}

func (*Pong) ConstructorID() uint32 { return PongTypeID }

func (p *Pong) Encode(b *bin.Buffer) error {
	b.PutID(PongTypeID)
	b.PutLong(p.MsgID)
	b.PutLong(p.PingID)
	return nil
}

func (p *Pong) Decode(b *bin.Buffer) error {
	msgID, err := b.Long()
	if err != nil {
		return errors.Wrap(err, "pong.msg_id")
	}
	pingID, err := b.Long()
	if err != nil {
		return errors.Wrap(err, "pong.ping_id")
	}
	p.MsgID, p.PingID = msgID, pingID
	return nil
}

// BadServerSalt reports that a message was encrypted with a stale
// salt, and supplies the current one.
type BadServerSalt struct {
	BadMsgID      int64
	BadMsgSeqNo   int32
	ErrorCode     int32
	NewServerSalt int64
}

func (*BadServerSalt) ConstructorID() uint32 { return BadServerSaltTypeID }

func (s *BadServerSalt) Encode(b *bin.Buffer) error {
	b.PutID(BadServerSaltTypeID)
	b.PutLong(s.BadMsgID)
	b.PutInt(s.BadMsgSeqNo)
	b.PutInt(s.ErrorCode)
	b.PutLong(s.NewServerSalt)
	return nil
}

func (s *BadServerSalt) Decode(b *bin.Buffer) error {
	var err error
	if s.BadMsgID, err = b.Long(); err != nil {
		return errors.Wrap(err, "bad_server_salt.bad_msg_id")
	}
	if s.BadMsgSeqNo, err = b.Int(); err != nil {
		return errors.Wrap(err, "bad_server_salt.bad_msg_seqno")
	}
	if s.ErrorCode, err = b.Int(); err != nil {
		return errors.Wrap(err, "bad_server_salt.error_code")
	}
	if s.NewServerSalt, err = b.Long(); err != nil {
		return errors.Wrap(err, "bad_server_salt.new_server_salt")
	}
	return nil
}

// BadMsgNotification reports a msg-id/seqno/time inconsistency.
type BadMsgNotification struct {
	BadMsgID    int64
	BadMsgSeqNo int32
	ErrorCode   int32
}

func (*BadMsgNotification) ConstructorID() uint32 { return BadMsgNotificationTypeID }

func (n *BadMsgNotification) Encode(b *bin.Buffer) error {
	b.PutID(BadMsgNotificationTypeID)
	b.PutLong(n.BadMsgID)
	b.PutInt(n.BadMsgSeqNo)
	b.PutInt(n.ErrorCode)
	return nil
}

func (n *BadMsgNotification) Decode(b *bin.Buffer) error {
	var err error
	if n.BadMsgID, err = b.Long(); err != nil {
		return errors.Wrap(err, "bad_msg_notification.bad_msg_id")
	}
	if n.BadMsgSeqNo, err = b.Int(); err != nil {
		return errors.Wrap(err, "bad_msg_notification.bad_msg_seqno")
	}
	if n.ErrorCode, err = b.Int(); err != nil {
		return errors.Wrap(err, "bad_msg_notification.error_code")
	}
	return nil
}

// MsgDetailedInfo tells the client that the server has a reply
// waiting, identified by AnswerMsgID.
type MsgDetailedInfo struct {
	MsgID       int64
	AnswerMsgID int64
	Bytes       int32
	Status      int32
}

func (*MsgDetailedInfo) ConstructorID() uint32 { return MsgDetailedInfoTypeID }

func (i *MsgDetailedInfo) Encode(b *bin.Buffer) error {
	b.PutID(MsgDetailedInfoTypeID)
	b.PutLong(i.MsgID)
	b.PutLong(i.AnswerMsgID)
	b.PutInt(i.Bytes)
	b.PutInt(i.Status)
	return nil
}

func (i *MsgDetailedInfo) Decode(b *bin.Buffer) error {
	var err error
	if i.MsgID, err = b.Long(); err != nil {
		return err
	}
	if i.AnswerMsgID, err = b.Long(); err != nil {
		return err
	}
	if i.Bytes, err = b.Int(); err != nil {
		return err
	}
	if i.Status, err = b.Int(); err != nil {
		return err
	}
	return nil
}

// MsgNewDetailedInfo is the variant sent for messages the client never
// acked.
type MsgNewDetailedInfo struct {
	AnswerMsgID int64
	Bytes       int32
	Status      int32
}

func (*MsgNewDetailedInfo) ConstructorID() uint32 { return MsgNewDetailedInfoTypeID }

func (i *MsgNewDetailedInfo) Encode(b *bin.Buffer) error {
	b.PutID(MsgNewDetailedInfoTypeID)
	b.PutLong(i.AnswerMsgID)
	b.PutInt(i.Bytes)
	b.PutInt(i.Status)
	return nil
}

func (i *MsgNewDetailedInfo) Decode(b *bin.Buffer) error {
	var err error
	if i.AnswerMsgID, err = b.Long(); err != nil {
		return err
	}
	if i.Bytes, err = b.Int(); err != nil {
		return err
	}
	if i.Status, err = b.Int(); err != nil {
		return err
	}
	return nil
}

// NewSessionCreated is sent once per session, carrying the salt to use
// from then on.
type NewSessionCreated struct {
	FirstMsgID int64
	UniqueID   int64
	ServerSalt int64
}

func (*NewSessionCreated) ConstructorID() uint32 { return NewSessionCreatedTypeID }

func (s *NewSessionCreated) Encode(b *bin.Buffer) error {
	b.PutID(NewSessionCreatedTypeID)
	b.PutLong(s.FirstMsgID)
	b.PutLong(s.UniqueID)
	b.PutLong(s.ServerSalt)
	return nil
}

func (s *NewSessionCreated) Decode(b *bin.Buffer) error {
	var err error
	if s.FirstMsgID, err = b.Long(); err != nil {
		return err
	}
	if s.UniqueID, err = b.Long(); err != nil {
		return err
	}
	if s.ServerSalt, err = b.Long(); err != nil {
		return err
	}
	return nil
}

// MsgsAck acknowledges receipt of a set of msg-ids. It is fire and
// forget: the sender never tracks its own msgs_ack in pending-state.
type MsgsAck struct {
	MsgIDs []int64
}

func (*MsgsAck) ConstructorID() uint32 { return MsgsAckTypeID }

func (a *MsgsAck) Encode(b *bin.Buffer) error {
	b.PutID(MsgsAckTypeID)
	b.PutVectorHeader(len(a.MsgIDs))
	for _, id := range a.MsgIDs {
		b.PutLong(id)
	}
	return nil
}

func (a *MsgsAck) Decode(b *bin.Buffer) error {
	n, err := b.VectorHeader()
	if err != nil {
		return errors.Wrap(err, "msgs_ack.msg_ids")
	}
	a.MsgIDs = make([]int64, n)
	for i := range a.MsgIDs {
		if a.MsgIDs[i], err = b.Long(); err != nil {
			return err
		}
	}
	return nil
}

// FutureSalt is one entry of a FutureSalts response.
type FutureSalt struct {
	ValidSince int32
	ValidUntil int32
	Salt       int64
}

// FutureSalts is the reply to a GetFutureSalts request.
type FutureSalts struct {
	ReqMsgID int64
	Now      int32
	Salts    []FutureSalt
}

func (*FutureSalts) ConstructorID() uint32 { return FutureSaltsTypeID }

func (f *FutureSalts) Encode(b *bin.Buffer) error {
	b.PutID(FutureSaltsTypeID)
	b.PutLong(f.ReqMsgID)
	b.PutInt(f.Now)
	b.PutVectorHeader(len(f.Salts))
	for _, s := range f.Salts {
		b.PutID(futureSaltTypeID)
		b.PutInt(s.ValidSince)
		b.PutInt(s.ValidUntil)
		b.PutLong(s.Salt)
	}
	return nil
}

func (f *FutureSalts) Decode(b *bin.Buffer) error {
	var err error
	if f.ReqMsgID, err = b.Long(); err != nil {
		return errors.Wrap(err, "future_salts.req_msg_id")
	}
	if f.Now, err = b.Int(); err != nil {
		return errors.Wrap(err, "future_salts.now")
	}
	n, err := b.VectorHeader()
	if err != nil {
		return errors.Wrap(err, "future_salts.salts")
	}
	f.Salts = make([]FutureSalt, n)
	for i := range f.Salts {
		if _, err := b.ConsumeID(); err != nil {
			return err
		}
		if f.Salts[i].ValidSince, err = b.Int(); err != nil {
			return err
		}
		if f.Salts[i].ValidUntil, err = b.Int(); err != nil {
			return err
		}
		if f.Salts[i].Salt, err = b.Long(); err != nil {
			return err
		}
	}
	return nil
}

// MsgsStateReq asks the client/server to report the state of a set of
// messages.
type MsgsStateReq struct {
	MsgIDs []int64
}

func (*MsgsStateReq) ConstructorID() uint32 { return MsgsStateReqTypeID }

func (r *MsgsStateReq) Encode(b *bin.Buffer) error {
	b.PutID(MsgsStateReqTypeID)
	b.PutVectorHeader(len(r.MsgIDs))
	for _, id := range r.MsgIDs {
		b.PutLong(id)
	}
	return nil
}

func (r *MsgsStateReq) Decode(b *bin.Buffer) error {
	n, err := b.VectorHeader()
	if err != nil {
		return err
	}
	r.MsgIDs = make([]int64, n)
	for i := range r.MsgIDs {
		if r.MsgIDs[i], err = b.Long(); err != nil {
			return err
		}
	}
	return nil
}

// MsgResendReq asks for specific messages to be resent; same wire
// shape as MsgsStateReq.
type MsgResendReq struct {
	MsgIDs []int64
}

func (*MsgResendReq) ConstructorID() uint32 { return MsgResendReqTypeID }

func (r *MsgResendReq) Encode(b *bin.Buffer) error {
	b.PutID(MsgResendReqTypeID)
	b.PutVectorHeader(len(r.MsgIDs))
	for _, id := range r.MsgIDs {
		b.PutLong(id)
	}
	return nil
}

func (r *MsgResendReq) Decode(b *bin.Buffer) error {
	n, err := b.VectorHeader()
	if err != nil {
		return err
	}
	r.MsgIDs = make([]int64, n)
	for i := range r.MsgIDs {
		if r.MsgIDs[i], err = b.Long(); err != nil {
			return err
		}
	}
	return nil
}

// MsgsStateInfo answers a MsgsStateReq/MsgResendReq. Info holds one
// status byte per requested msg-id, each 0x01 (present), matching the
// corrected reading of the schema noted in DESIGN.md rather than the
// literal "\x01 repeated msgIds times" source behavior.
type MsgsStateInfo struct {
	ReqMsgID int64
	Info     []byte
}

func (*MsgsStateInfo) ConstructorID() uint32 { return MsgsStateInfoTypeID }

func (i *MsgsStateInfo) Encode(b *bin.Buffer) error {
	b.PutID(MsgsStateInfoTypeID)
	b.PutLong(i.ReqMsgID)
	b.PutBytes(i.Info)
	return nil
}

func (i *MsgsStateInfo) Decode(b *bin.Buffer) error {
	var err error
	if i.ReqMsgID, err = b.Long(); err != nil {
		return err
	}
	if i.Info, err = b.Bytes(); err != nil {
		return err
	}
	return nil
}

// MsgsAllInfo is an informational broadcast of message states; the
// sender core treats it as a no-op.
type MsgsAllInfo struct {
	MsgIDs []int64
	Info   []byte
}

func (*MsgsAllInfo) ConstructorID() uint32 { return MsgsAllInfoTypeID }

func (i *MsgsAllInfo) Encode(b *bin.Buffer) error {
	b.PutID(MsgsAllInfoTypeID)
	b.PutVectorHeader(len(i.MsgIDs))
	for _, id := range i.MsgIDs {
		b.PutLong(id)
	}
	b.PutBytes(i.Info)
	return nil
}

func (i *MsgsAllInfo) Decode(b *bin.Buffer) error {
	n, err := b.VectorHeader()
	if err != nil {
		return err
	}
	i.MsgIDs = make([]int64, n)
	for idx := range i.MsgIDs {
		if i.MsgIDs[idx], err = b.Long(); err != nil {
			return err
		}
	}
	if i.Info, err = b.Bytes(); err != nil {
		return err
	}
	return nil
}

// TypesConstructorMap returns a fresh instance factory for every
// constructor this package knows about, mirroring the
// mt.TypesConstructorMap()/tmap.Constructor pattern used by the
// upstream decode-dispatch fuzz harness.
func TypesConstructorMap() map[uint32]func() bin.Object {
	return map[uint32]func() bin.Object{
		MessageContainerTypeID:   func() bin.Object { return &MessageContainer{} },
		RPCResultTypeID:          func() bin.Object { return &RPCResult{} },
		GZIPPackedTypeID:         func() bin.Object { return &GZIPPacked{} },
		PongTypeID:               func() bin.Object { return &Pong{} },
		BadServerSaltTypeID:      func() bin.Object { return &BadServerSalt{} },
		BadMsgNotificationTypeID: func() bin.Object { return &BadMsgNotification{} },
		MsgsAckTypeID:            func() bin.Object { return &MsgsAck{} },
		MsgDetailedInfoTypeID:    func() bin.Object { return &MsgDetailedInfo{} },
		MsgNewDetailedInfoTypeID: func() bin.Object { return &MsgNewDetailedInfo{} },
		NewSessionCreatedTypeID:  func() bin.Object { return &NewSessionCreated{} },
		FutureSaltsTypeID:        func() bin.Object { return &FutureSalts{} },
		MsgsStateReqTypeID:       func() bin.Object { return &MsgsStateReq{} },
		MsgResendReqTypeID:       func() bin.Object { return &MsgResendReq{} },
		MsgsStateInfoTypeID:      func() bin.Object { return &MsgsStateInfo{} },
		MsgsAllInfoTypeID:        func() bin.Object { return &MsgsAllInfo{} },
		RPCErrorTypeID:           func() bin.Object { return &RPCError{} },
	}
}
