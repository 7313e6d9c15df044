package clock

import (
	"context"
	"time"

	"github.com/gotd/neo"
)

// Manual is a virtual clock for tests, backed by gotd/neo's scheduler.
// Advance moves time forward and fires any timers due in that window,
// so the 1s reconnect backoff and keepalive timer can be exercised
// without actually sleeping.
type Manual struct {
	t *neo.Time
}

// NewManual creates a virtual clock starting at now.
func NewManual(now time.Time) *Manual {
	return &Manual{t: neo.NewTime(now)}
}

func (m *Manual) Now() time.Time { return m.t.Now() }

func (m *Manual) Timer(d time.Duration) Timer {
	return neoTimer{m.t.Timer(d)}
}

func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	t := m.t.Timer(d)
	defer t.Stop()
	select {
	case <-t.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Advance moves the virtual clock forward by d, firing due timers.
func (m *Manual) Advance(d time.Duration) {
	m.t.Travel(d)
}

type neoTimer struct {
	inner neo.Timer
}

func (n neoTimer) C() <-chan time.Time { return n.inner.C() }
func (n neoTimer) Stop() bool          { return n.inner.Stop() }
