package mtproto

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/archtg/mtsender/crypto"
)

// errAuthKeyLost is the recvLoop termination error for an
// InvalidBufferError(404): the server no longer recognizes our auth
// key. watchLoops special-cases it to skip auto-reconnect and signal the
// break exactly once: StateBroken through UpdateCallback on the main
// sender, OnConnectionBreak on any other (spec.md §7/§8 scenario S5).
var errAuthKeyLost = errors.New("mtproto: auth key no longer recognized by server")

// recvLoop is the three-step loop of spec.md §4.7: read a frame,
// decrypt it, and dispatch the resulting message. Decryption failures
// branch per spec.md §7 instead of always tearing the loop down. conn
// is passed in for the same reason sendLoop takes it: reading s.conn
// directly would race with Disconnect's write under s.mu.
func (s *Sender) recvLoop(ctx context.Context, conn Connection) error {
	for {
		raw, err := conn.Recv(ctx)
		if err != nil {
			return err
		}

		msg, err := s.state.DecryptMessageData(raw)
		if err != nil {
			recoverable, terminal := s.handleDecryptError(err)
			if recoverable {
				continue
			}
			return terminal
		}

		s.processMessage(msg.MsgID, msg.SeqNo, msg.Body)
	}
}

// handleDecryptError logs the failure and reports whether the loop may
// continue; when it may not, it also reports the error recvLoop should
// return. A security-check failure just drops the one frame. An
// invalid-buffer error with code 404 means the server no longer
// recognizes our auth key, on the main sender or not: watchLoops treats
// errAuthKeyLost as unrecoverable and skips the ordinary reconnect path
// (spec.md §7). Any other invalid-buffer code is also terminal: it
// means the frame could not be parsed at all, and the loop must exit
// and trigger reconnect rather than risk desyncing further reads.
func (s *Sender) handleDecryptError(err error) (recoverable bool, terminal error) {
	var secErr *crypto.SecurityError
	if errors.As(err, &secErr) {
		s.log.Warn("dropping message that failed the security check", zap.String("reason", secErr.Reason))
		return true, nil
	}

	var bufErr *crypto.InvalidBufferError
	if errors.As(err, &bufErr) {
		if bufErr.Code == 404 {
			s.log.Error("auth key no longer recognized by server", zap.Bool("main_sender", s.opts.IsMainSender))
			return false, errAuthKeyLost
		}
		s.log.Warn("invalid buffer while decrypting message; triggering reconnect", zap.Int("code", bufErr.Code))
		return false, err
	}

	s.log.Warn("failed to decrypt message", zap.Error(err))
	return false, err
}
