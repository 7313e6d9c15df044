package mtproto

import (
	"context"

	"github.com/archtg/mtsender/rpc"
)

// sendLoop is the loop of spec.md §4.6: drain the pending-ack set into
// a MsgsAck appended to the packer's queue, pull a batch, track every
// request-class member in the pending-state engine, encrypt the batch
// under the outer msg-id/seq-no the packer assigned it, write it to the
// connection, and then resolve the batch's notifications. An encrypt
// failure rejects that batch and the loop goes on; it returns the first
// transport write error, or ctx's error once ctx is done.
//
// conn is the connection Connect dialed for this generation of the
// loops, passed in rather than read from s.conn: Disconnect nils out
// s.conn under s.mu once it cancels ctx, and by then this loop is
// already exiting, but reading the field directly would still race
// with that write.
func (s *Sender) sendLoop(ctx context.Context, conn Connection) error {
	for {
		s.flushPendingAcks()

		batch, err := s.packer.Get(ctx)
		if err != nil {
			return err
		}

		for _, st := range batch.States {
			if st.Request.ClassType() == rpc.ClassRequest {
				s.engine.Insert(st)
			}
			if _, ok := st.Request.(*ackRequest); ok {
				s.acks.remember(st)
			}
		}

		ciphertext, err := s.state.EncryptMessageData(batch.MsgID, batch.SeqNo, batch.Data)
		if err != nil {
			s.rejectBatch(batch, err)
			continue
		}

		if err := conn.Send(ctx, ciphertext); err != nil {
			s.rejectBatch(batch, err)
			return err
		}

		for _, st := range batch.States {
			if st.Request.ClassType() != rpc.ClassRequest {
				st.Resolve(nil)
			}
		}
	}
}

func (s *Sender) rejectBatch(batch *Batch, err error) {
	for _, st := range batch.States {
		if st.Request.ClassType() == rpc.ClassRequest {
			s.engine.Pop(st.MsgID)
		}
		st.Reject(err)
	}
}
