package mtproto

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// reconnectBackoffDelay is the fixed server-protection wait spec.md
// §4.10 step 1 mandates before a reconnect attempts anything else,
// distinct from opts.RetryDelay's per-attempt exponential backoff.
const reconnectBackoffDelay = time.Second

// reconnect is the seven-step sequence of spec.md §4.10: wait out the
// server-protection delay, close the broken connection, reset session
// state, requeue every outstanding request, and retry the dial-and-
// handshake (dialOnce) with exponential backoff until it succeeds or
// opts.Retries is exhausted.
// On success, fires AutoReconnectCallback — a notification, not a veto.
func (s *Sender) reconnect(ctx context.Context) {
	_ = s.opts.Clock.Sleep(ctx, reconnectBackoffDelay)

	s.opts.UpdateCallback(StateDisconnected)

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.cancel = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	s.state.Reset()

	// Queued ahead of the retry loop below rather than strictly after
	// it succeeds: deliberate, since the fresh send loop establish
	// spawns doesn't start pulling from the packer until that loop
	// exists, so nothing queued here is sent or lost before then.
	for _, st := range s.engine.Drain() {
		s.packer.Append(st)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.RetryDelay
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	var policy backoff.BackOff = bo
	if s.opts.Retries >= 0 {
		policy = backoff.WithMaxRetries(bo, uint64(s.opts.Retries))
	}

	// Calls dialOnce directly, not Connect: Connect's own dialWithRetry
	// would nest a second retry budget inside this one. reconnect has
	// already announced StateDisconnected above, so dialWithRetry's
	// first-failure callback would be redundant here too.
	attempt := 0
	var newConn Connection
	err := backoff.Retry(func() error {
		attempt++
		c, err := s.dialOnce(ctx)
		if err != nil {
			s.log.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		newConn = c
		return nil
	}, policy)

	if err != nil {
		s.log.Error("giving up reconnecting", zap.Error(err))
		s.opts.UpdateCallback(StateBroken)
		s.opts.OnConnectionBreak(s.opts.DC.DCID)
		s.packer.RejectAll()
		for _, st := range s.engine.Drain() {
			st.Reject(errDisconnected)
		}
		return
	}

	s.establish(newConn)

	if s.opts.AutoReconnectCallback != nil {
		s.opts.AutoReconnectCallback()
	}
}
