package rpc

import (
	"go.uber.org/zap"

	"github.com/archtg/mtsender/clock"
)

// Options configures the pending-request engine. Pared down from
// upstream gotd/td's rpc.Engine options (pkg/gotd/rpc/options.go):
// RetryInterval/MaxRetries/DropHandler are dropped because spec.md §1
// explicitly excludes application-level RPC retry — the only retry
// this module performs is transport/protocol-meta retry, which lives
// in Sender, not here.
type Options struct {
	Logger  *zap.Logger
	Clock   clock.Clock
	OnError func(error)
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = clock.System
	}
	if o.OnError == nil {
		o.OnError = func(error) {}
	}
}
