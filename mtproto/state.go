// Package mtproto implements the sender core: MTProtoState (msg-id/
// seqno generation, salt/session holding, encrypt/decrypt), the
// MessagePacker send queue, and the Sender itself. Grounded on the
// teacher's vendored gotd/td fragments (pkg/gotd/mtproto/
// handle_future_salts.go's Conn field set and handler shape,
// pkg/gotd/telegram/invoke.go's context-cancellable invoke pattern).
package mtproto

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/atomic"

	"github.com/archtg/mtsender/bin"
	"github.com/archtg/mtsender/crypto"
	"github.com/archtg/mtsender/mt"
)

// TLMessage is a decoded, but not yet dispatched, message: its
// header plus the still-encoded inner TL object (constructor id and
// body). Spec.md §4.3: decryptMessageData returns TLMessage{msgId,
// seqNo, obj} — here obj stays encoded until _processMessage decodes
// it against the known constructor table, since the sender core does
// not carry the full generated RPC schema.
type TLMessage struct {
	MsgID     int64
	SeqNo     int32
	Body      []byte
	SessionID int64
}

// State is MTProtoState: the monotonic msg-id/seqno generator with
// time-offset correction, and the salt/session-id holder. Fields are
// atomics because, unlike the cooperative single-task model spec.md §5
// describes, Go's send and receive loops are real goroutines that can
// both touch msg-id generation and salt/sequence state.
type State struct {
	authKey *crypto.AuthKey

	salt       atomic.Int64
	sessionID  atomic.Int64
	timeOffset atomic.Int32
	sequence   atomic.Int32
	lastMsgID  atomic.Int64

	securityChecks atomic.Bool
}

// NewState creates a State bound to authKey. A fresh session id is
// rolled immediately, matching reset()'s job at connect time. Security
// checks (the session id match on decrypt) are enabled by default.
func NewState(authKey *crypto.AuthKey) *State {
	s := &State{authKey: authKey}
	s.securityChecks.Store(true)
	s.rollSessionID()
	return s
}

// SetSecurityChecks toggles the session id match check performed by
// DecryptMessageData, mirroring spec.md §6's securityChecks option.
// Disabling it is only ever appropriate against a trusted test server.
func (s *State) SetSecurityChecks(enabled bool) {
	s.securityChecks.Store(enabled)
}

// AuthKey returns the underlying key, for callers that need to install
// one after a handshake (Sender.connect step 3).
func (s *State) AuthKey() *crypto.AuthKey {
	return s.authKey
}

// Salt returns the current server salt.
func (s *State) Salt() int64 { return s.salt.Load() }

// SetSalt installs a new server salt, e.g. from BadServerSalt or
// NewSessionCreated (spec.md §4.8).
func (s *State) SetSalt(v int64) { s.salt.Store(v) }

// SessionID returns the current session id.
func (s *State) SessionID() int64 { return s.sessionID.Load() }

// TimeOffset returns the current clock-correction offset in seconds.
func (s *State) TimeOffset() int32 { return s.timeOffset.Load() }

func (s *State) rollSessionID() {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	s.sessionID.Store(int64(binary.LittleEndian.Uint64(buf[:])))
}

// GetNewMsgID returns a msg-id strictly greater than every previously
// issued one, clock-anchored via timeOffset. Only the send loop (via
// the packer) calls this, so ids remain strictly monotone across both
// loops (spec.md §5, invariant 1 of §8).
func (s *State) GetNewMsgID() int64 {
	now := time.Now().Add(time.Duration(s.timeOffset.Load()) * time.Second)
	seconds := now.Unix()
	nanoFraction := uint32(now.Nanosecond())
	id := (seconds << 32) | int64(nanoFraction)
	// Client-generated ids must be divisible by 4; see spec.md GLOSSARY.
	id &^= 3
	for {
		last := s.lastMsgID.Load()
		if id <= last {
			id = last + 4
		}
		if s.lastMsgID.CompareAndSwap(last, id) {
			return id
		}
	}
}

// UpdateTimeOffset recomputes timeOffset so future ids line up with
// the server's clock, using correctMsgID's embedded timestamp. Called
// on bad_msg_notification codes 16/17 (spec.md §4.8).
func (s *State) UpdateTimeOffset(correctMsgID int64) int32 {
	serverSeconds := int32(correctMsgID >> 32)
	localSeconds := int32(time.Now().Unix())
	offset := serverSeconds - localSeconds
	s.timeOffset.Store(offset)
	return offset
}

// NextSeqNo computes the seq-no for a new outgoing message. Content
// -related messages are odd and advance the underlying counter;
// non-content messages are even and do not, matching spec.md §3.
func (s *State) NextSeqNo(contentRelated bool) int32 {
	if contentRelated {
		seq := s.sequence.Add(1) - 1
		return seq*2 + 1
	}
	return s.sequence.Load() * 2
}

// BumpSequence nudges the raw sequence counter by delta, per
// bad_msg_notification codes 32 (+64) and 33 (-16) (spec.md §4.8).
func (s *State) BumpSequence(delta int32) {
	s.sequence.Add(delta)
}

// EncryptMessageData wraps body in the standard MTProto plaintext
// frame (salt, session id, msg id, seq no, length) and encrypts it.
func (s *State) EncryptMessageData(msgID int64, seqNo int32, body []byte) ([]byte, error) {
	var frame bin.Buffer
	frame.PutLong(s.Salt())
	frame.PutLong(s.SessionID())
	frame.PutLong(msgID)
	frame.PutInt(seqNo)
	frame.PutInt(int32(len(body)))
	frame.Buf = append(frame.Buf, body...)
	return s.authKey.EncryptMessageData(frame.Buf)
}

// DecryptMessageData decrypts ciphertext and parses the plaintext
// frame, returning the header and still-encoded inner object. Errors
// are *crypto.SecurityError, *crypto.InvalidBufferError, or a wrapped
// decode error, matching spec.md §4.3.
func (s *State) DecryptMessageData(ciphertext []byte) (*TLMessage, error) {
	// A bare 4-byte frame is the transport-level quick-error packet
	// MTProto servers send instead of an encrypted message (e.g. -404
	// when they no longer recognize our auth key); it is never a valid
	// ciphertext length.
	if len(ciphertext) == 4 {
		code := int32(binary.LittleEndian.Uint32(ciphertext))
		if code < 0 {
			return nil, &crypto.InvalidBufferError{Code: int(-code)}
		}
	}
	plaintext, err := s.authKey.DecryptMessageData(ciphertext)
	if err != nil {
		return nil, err
	}
	frame := bin.Buffer{Buf: plaintext}
	if _, err := frame.Long(); err != nil { // salt
		return nil, &crypto.InvalidBufferError{Code: 1}
	}
	sessionID, err := frame.Long()
	if err != nil {
		return nil, &crypto.InvalidBufferError{Code: 1}
	}
	if s.securityChecks.Load() && sessionID != s.SessionID() {
		return nil, &crypto.SecurityError{Reason: "session id mismatch"}
	}
	msgID, err := frame.Long()
	if err != nil {
		return nil, &crypto.InvalidBufferError{Code: 1}
	}
	seqNo, err := frame.Int()
	if err != nil {
		return nil, &crypto.InvalidBufferError{Code: 1}
	}
	length, err := frame.Int()
	if err != nil {
		return nil, &crypto.InvalidBufferError{Code: 1}
	}
	if int32(len(frame.Buf)) < length {
		return nil, &crypto.InvalidBufferError{Code: 1}
	}
	return &TLMessage{MsgID: msgID, SeqNo: seqNo, Body: frame.Buf[:length], SessionID: sessionID}, nil
}

// AdoptSessionID installs id as the current session id without rolling
// a new one. Production callers never need this — a session id is
// established once at Reset/NewState and then only changes via Reset.
// It exists for test harnesses on the "server" side of a pipe that
// must mirror whatever session id the client picked.
func (s *State) AdoptSessionID(id int64) {
	s.sessionID.Store(id)
}

// Reset rolls a fresh session id and clears the per-session sequence
// counter, matching spec.md §4.10 step 4 ("new session id").
func (s *State) Reset() {
	s.rollSessionID()
	s.sequence.Store(0)
}

// decodeBody peeks obj's constructor id and, if known, decodes it into
// a concrete mt type. Returns *mt.TypeNotFoundError if the constructor
// is unrecognized; the caller logs and continues per spec.md §7.
func decodeBody(body []byte) (bin.Object, error) {
	buf := bin.Buffer{Buf: body}
	id, err := buf.PeekID()
	if err != nil {
		return nil, errors.Wrap(err, "peek constructor id")
	}
	factory, ok := mt.TypesConstructorMap()[id]
	if !ok {
		return nil, &mt.TypeNotFoundError{ID: id}
	}
	if _, err := buf.ConsumeID(); err != nil {
		return nil, err
	}
	obj := factory()
	if err := obj.Decode(&buf); err != nil {
		return nil, errors.Wrap(err, "decode body")
	}
	return obj, nil
}
