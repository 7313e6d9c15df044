// Package clock provides the time seam used by the sender core: a real
// wall clock in production, and a virtual one (Manual) that can be
// installed in its place so that the 1s reconnect backoff (spec.md
// §4.10) and the keepalive timer run without real waiting. Msg-id
// generation and the connect/reconnect retry backoff do not go through
// this seam; they use the real wall clock.
package clock

import (
	"context"
	"time"
)

// Timer is the subset of time.Timer that Clock.Timer needs to expose.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock abstracts time so the reconnect backoff wait and the keepalive
// timer can be driven by a virtual clock.
type Clock interface {
	Now() time.Time
	Timer(d time.Duration) Timer
	Sleep(ctx context.Context, d time.Duration) error
}

// System is the production Clock backed by the real wall clock.
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Timer(d time.Duration) Timer {
	t := time.NewTimer(d)
	return systemTimer{t}
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) C() <-chan time.Time { return s.t.C }
func (s systemTimer) Stop() bool          { return s.t.Stop() }
