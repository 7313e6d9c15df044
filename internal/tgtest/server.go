package tgtest

import (
	"context"

	"github.com/archtg/mtsender/bin"
	"github.com/archtg/mtsender/crypto"
	"github.com/archtg/mtsender/mtproto"
)

// Server is a scriptable fake MTProto endpoint sitting on the far side
// of a Pipe. It mirrors the client's session id once it observes the
// first frame, then lets a test craft arbitrary replies — including
// malformed ones a real server would never send — by encrypting under
// whatever msg-id/seq-no/salt it's told to use.
type Server struct {
	pipe    *Pipe
	state   *mtproto.State
	learned bool
}

// NewServer creates a Server sharing authKey with the client under
// test. Security checks stay disabled on the server side's own state,
// so the session id check is skipped both before and after the
// client's session id has been learned from its first frame.
func NewServer(authKey *crypto.AuthKey, pipe *Pipe) *Server {
	state := mtproto.NewState(authKey)
	state.SetSecurityChecks(false)
	return &Server{pipe: pipe, state: state}
}

// RecvClient blocks for the next client frame and decrypts it,
// learning the client's session id on the first call.
func (s *Server) RecvClient(ctx context.Context) (*mtproto.TLMessage, error) {
	raw, err := s.pipe.ServerRecv(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := s.state.DecryptMessageData(raw)
	if err != nil {
		return nil, err
	}
	if !s.learned {
		s.state.AdoptSessionID(msg.SessionID)
		s.learned = true
	}
	return msg, nil
}

// Send encrypts obj under the given header and writes it to the
// client. Tests that need specific, possibly spec-violating msg-id/
// seq-no values use this directly; Reply is the convenience path for
// well-formed server pushes.
func (s *Server) Send(ctx context.Context, msgID int64, seqNo int32, obj bin.Object) error {
	var buf bin.Buffer
	if err := obj.Encode(&buf); err != nil {
		return err
	}
	ciphertext, err := s.state.EncryptMessageData(msgID, seqNo, buf.Buf)
	if err != nil {
		return err
	}
	return s.pipe.ServerSend(ctx, ciphertext)
}

// Reply sends obj with a freshly assigned msg-id and a non-content
// seq-no, matching how most server pushes (pongs, salt notices,
// containers) are framed.
func (s *Server) Reply(ctx context.Context, obj bin.Object) error {
	return s.Send(ctx, s.state.GetNewMsgID(), s.state.NextSeqNo(false), obj)
}

// SetSalt installs the salt the server claims as current, for
// exercising bad_server_salt recovery.
func (s *Server) SetSalt(v int64) { s.state.SetSalt(v) }

// SendRaw writes a pre-built ciphertext directly, bypassing encryption
// entirely — for tests of decrypt-error handling (corrupt frames,
// wrong key id).
func (s *Server) SendRaw(ctx context.Context, data []byte) error {
	return s.pipe.ServerSend(ctx, data)
}
