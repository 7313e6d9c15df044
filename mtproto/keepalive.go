package mtproto

import (
	"context"

	"go.uber.org/zap"

	"github.com/archtg/mtsender/bin"
	"github.com/archtg/mtsender/rpc"
)

const pingConstructorID = 0x7abe77ec

// pingRequest is a plain keepalive ping; the server answers with its
// own mt.Pong carrying the same ping id, dispatched directly rather
// than wrapped in an rpc_result.
type pingRequest struct {
	pingID int64
}

func (p *pingRequest) Encode(b *bin.Buffer) error {
	b.PutID(pingConstructorID)
	b.PutLong(p.pingID)
	return nil
}

func (p *pingRequest) ClassType() rpc.ClassType { return rpc.ClassRequest }

func (p *pingRequest) ReadResult(*bin.Buffer) (any, error) { return nil, nil }

// StartKeepalive launches a goroutine that pings the connection every
// opts.PingInterval, whatever other traffic it carries, and logs when a
// ping goes unanswered. This
// supplements the request/response contract spec.md defines: nothing
// in the sender core requires it, and callers that don't want it
// simply never call it.
func (s *Sender) StartKeepalive(ctx context.Context) {
	go s.keepaliveLoop(ctx)
}

func (s *Sender) keepaliveLoop(ctx context.Context) {
	timer := s.opts.Clock.Timer(s.opts.PingInterval)
	defer timer.Stop()

	var pingID int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			if !s.IsConnected() {
				timer = s.opts.Clock.Timer(s.opts.PingInterval)
				continue
			}
			pingID++
			pingCtx, cancel := context.WithTimeout(ctx, s.opts.PingInterval)
			_, err := s.Send(pingCtx, &pingRequest{pingID: pingID})
			cancel()
			if err != nil {
				s.log.Warn("keepalive ping failed", zap.Error(err))
			}
			timer = s.opts.Clock.Timer(s.opts.PingInterval)
		}
	}
}
