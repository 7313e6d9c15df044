package rpc

import (
	"context"
	"sync"
)

// Completion is a one-shot, value-carrying resolve/reject handle.
// RequestState owns one; the Sender holds the other end. It follows
// the same Wait(ctx) idiom as go.mau.fi/util/exsync.Event, but unlike
// Event it carries a resolved value or error rather than a bare
// signal — exsync.Event has no such variant, so this is hand-rolled
// (see DESIGN.md).
type Completion struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// resolve fulfils the completion with a value. A second call, whether
// resolve or reject, is a no-op.
func (c *Completion) resolve(v any) {
	c.once.Do(func() {
		c.value = v
		close(c.done)
	})
}

// reject fulfils the completion with an error. A second call, whether
// resolve or reject, is a no-op.
func (c *Completion) reject(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Wait blocks until the completion is resolved or rejected, or ctx is
// done.
func (c *Completion) Wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
