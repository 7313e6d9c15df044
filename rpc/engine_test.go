package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/archtg/mtsender/bin"
)

type pingRequest struct{ pingID int64 }

func (p *pingRequest) Encode(b *bin.Buffer) error {
	b.PutLong(p.pingID)
	return nil
}

func (p *pingRequest) ClassType() ClassType { return ClassRequest }

func (p *pingRequest) ReadResult(b *bin.Buffer) (any, error) {
	return nil, nil
}

func TestCompletionResolveIsIdempotent(t *testing.T) {
	c := newCompletion()
	c.resolve("first")
	c.resolve("second")
	c.reject(context.Canceled)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := c.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", v)
}

func TestCompletionWaitRespectsContext(t *testing.T) {
	c := newCompletion()
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err := c.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineInsertPopDrain(t *testing.T) {
	e := New(Options{})

	s1, err := NewRequestState(&pingRequest{pingID: 1})
	require.NoError(t, err)
	s1.MsgID = 10

	s2, err := NewRequestState(&pingRequest{pingID: 2})
	require.NoError(t, err)
	s2.MsgID = 20
	s2.ContainerID = 10

	e.Insert(s1)
	e.Insert(s2)
	require.Equal(t, 2, e.Len())

	got, ok := e.Pop(10)
	require.True(t, ok)
	require.Same(t, s1, got)
	require.Equal(t, 1, e.Len())

	byContainer := e.PopByContainer(10)
	require.Len(t, byContainer, 1)
	require.Same(t, s2, byContainer[0])
	require.Zero(t, e.Len())

	e.Insert(s2)
	e.Insert(s1)
	drained := e.Drain()
	require.Equal(t, []*RequestState{s1, s2}, drained)
	require.Zero(t, e.Len())
}
