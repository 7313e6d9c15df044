package mtproto

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Connect dials and authenticates with retry, per spec.md §4.4/§4.5,
// then spawns the send/receive loops against the resulting connection.
func (s *Sender) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected.Load() {
		s.mu.Unlock()
		return errAlreadyConnected
	}
	s.disconnecting.Store(false)
	s.mu.Unlock()

	conn, err := s.dialWithRetry(ctx)
	if err != nil {
		return err
	}

	s.establish(conn)
	return nil
}

// establish wires an already-dialed, already-authenticated connection
// into the sender: it installs conn, spawns the send/receive loops
// against it, and announces StateConnected. Both Connect's own retry
// loop and reconnect's land here once they have a live connection, so
// the loop-spawning/bookkeeping step only exists once.
func (s *Sender) establish(conn Connection) {
	s.mu.Lock()
	s.conn = conn
	loopCtx, loopCancel := context.WithCancel(context.Background())
	s.cancel = loopCancel
	s.mu.Unlock()

	group, groupCtx := errgroup.WithContext(loopCtx)
	group.Go(func() error { return s.sendLoop(groupCtx, conn) })
	group.Go(func() error { return s.recvLoop(groupCtx, conn) })

	s.connected.Store(true)
	s.opts.UpdateCallback(StateConnected)

	go s.watchLoops(group)
}

// dialWithRetry is spec.md §4.4's connect contract: a first attempt
// plus up to opts.Retries retries (the default maps to unlimited),
// spaced by exponential backoff starting at opts.RetryDelay,
// each a fresh dial-and-handshake. The first failed attempt reports
// StateDisconnected; later attempts stay quiet until the policy itself
// gives up, matching "on first failure emits an UpdateConnectionState
// .disconnected callback" rather than one per attempt.
func (s *Sender) dialWithRetry(ctx context.Context) (Connection, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.RetryDelay
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	var policy backoff.BackOff = bo
	if s.opts.Retries >= 0 {
		policy = backoff.WithMaxRetries(bo, uint64(s.opts.Retries))
	}

	attempt := 0
	var conn Connection
	err := backoff.Retry(func() error {
		attempt++
		c, err := s.dialOnce(ctx)
		if err != nil {
			if attempt == 1 {
				s.opts.UpdateCallback(StateDisconnected)
			}
			s.log.Warn("connect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		conn = c
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// dialOnce performs a single dial-and-handshake attempt: open the
// transport connection and, if no auth key is installed yet, run the
// key exchange. A missing authenticator is a configuration error, not
// a transient one, so it's wrapped backoff.Permanent to skip the rest
// of the retry budget.
func (s *Sender) dialOnce(ctx context.Context) (Connection, error) {
	conn := s.opts.NewConnection()
	connectCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	err := conn.Connect(connectCtx)
	cancel()
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}

	if s.state.AuthKey().Empty() {
		if s.opts.Authenticator == nil {
			_ = conn.Close()
			return nil, backoff.Permanent(errors.New("mtproto: no auth key installed and no authenticator configured"))
		}
		result, err := s.opts.Authenticator.DoAuthentication(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, errors.Wrap(err, "authenticate")
		}
		s.state.AuthKey().SetKey(result.AuthKey.GetKey())
		s.state.SetSalt(result.ServerSalt)
		s.state.timeOffset.Store(result.TimeOffset)
		s.opts.AuthKeyCallback(s.state.AuthKey())
	}

	return conn, nil
}

// watchLoops blocks until both the send and receive loops exit, then
// either hands off to _reconnect or, if auto-reconnect is disabled,
// marks the sender broken and fails every outstanding request. A loop
// exit caused by Disconnect itself is not a break: Disconnect already
// performed the equivalent cleanup synchronously.
func (s *Sender) watchLoops(group *errgroup.Group) {
	err := group.Wait()
	s.connected.Store(false)
	if err == nil {
		return
	}
	if s.disconnecting.Load() {
		return
	}

	if errors.Is(err, errAuthKeyLost) {
		if s.opts.IsMainSender {
			s.opts.UpdateCallback(StateBroken)
		} else {
			s.opts.OnConnectionBreak(s.opts.DC.DCID)
		}
		s.packer.RejectAll()
		for _, st := range s.engine.Drain() {
			st.Reject(errAuthKeyLost)
		}
		return
	}

	s.log.Warn("sender loops exited", zap.Error(err))

	if !s.opts.DisableAutoReconnect {
		s.reconnect(context.Background())
		return
	}

	s.opts.UpdateCallback(StateBroken)
	s.opts.OnConnectionBreak(s.opts.DC.DCID)
	s.packer.RejectAll()
	for _, st := range s.engine.Drain() {
		st.Reject(errDisconnected)
	}
}
