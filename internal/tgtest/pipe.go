// Package tgtest provides an in-memory Connection and a scriptable
// fake server for exercising Sender without a real socket. Grounded on
// the teacher's pkg/gotd/tgtest (ServerOptions shape) and pkg/gotd/tgmock
// (Handler/HandlerFunc), adapted from an HTTP-style RPC mock into a
// full-duplex byte pipe since the sender core's server side speaks raw
// encrypted frames, not one request/response call at a time.
package tgtest

import (
	"context"
	"io"
	"sync"
)

// Pipe is an in-memory mtproto.Connection. The client side (returned
// by AsConnection) and the server side (driven through ServerSend/
// ServerRecv) exchange opaque frames over buffered channels.
type Pipe struct {
	toServer chan []byte
	toClient chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPipe creates an unconnected pipe with room for a handful of
// frames in flight before Send blocks.
func NewPipe() *Pipe {
	return &Pipe{
		toServer: make(chan []byte, 16),
		toClient: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

// AsConnection returns the client-facing mtproto.Connection view of
// the pipe.
func (p *Pipe) AsConnection() *clientSide { return &clientSide{p} }

type clientSide struct{ p *Pipe }

func (c *clientSide) Connect(context.Context) error { return nil }

func (c *clientSide) Send(ctx context.Context, data []byte) error {
	return c.p.send(ctx, c.p.toServer, data)
}

func (c *clientSide) Recv(ctx context.Context) ([]byte, error) {
	return c.p.recv(ctx, c.p.toClient)
}

func (c *clientSide) Close() error { return c.p.Close() }

// ServerSend writes a frame to the client.
func (p *Pipe) ServerSend(ctx context.Context, data []byte) error {
	return p.send(ctx, p.toClient, data)
}

// ServerRecv blocks for the next frame the client sent.
func (p *Pipe) ServerRecv(ctx context.Context) ([]byte, error) {
	return p.recv(ctx, p.toServer)
}

// Close tears down the pipe; pending Sends/Recvs on either side
// unblock with io.ErrClosedPipe/io.EOF. Safe to call more than once.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *Pipe) send(ctx context.Context, ch chan []byte, data []byte) error {
	select {
	case ch <- append([]byte(nil), data...):
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipe) recv(ctx context.Context, ch chan []byte) ([]byte, error) {
	select {
	case b := <-ch:
		return b, nil
	case <-p.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
