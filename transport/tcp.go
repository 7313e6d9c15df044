package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/archtg/mtsender/mtproto"
)

// abridgedMagic is the single byte a client writes right after dialing
// to select MTProto's abridged transport: every frame after it is
// framed as a short length prefix plus payload, with no padding.
const abridgedMagic = 0xef

// quickAckBit marks a length byte the server set to request the high
// bit be echoed back on acknowledgement; this transport never asks
// for quick acks, so it only ever needs to mask the bit off on read.
const quickAckBit = 0x80

var _ mtproto.Connection = (*TCP)(nil)

// TCP is a Connection that dials the datacenter directly and frames
// messages with MTProto's abridged transport.
type TCP struct {
	addr   string
	dialer net.Dialer

	mu   sync.Mutex
	conn net.Conn
}

// NewTCP creates a TCP transport dialing addr ("host:port") on Connect.
func NewTCP(addr string) *TCP {
	return &TCP{addr: addr}
}

func (t *TCP) Connect(ctx context.Context) error {
	conn, err := t.dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	if _, err := conn.Write([]byte{abridgedMagic}); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "write abridged handshake byte")
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *TCP) currentConn() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *TCP) Send(ctx context.Context, data []byte) error {
	conn := t.currentConn()
	if conn == nil {
		return errors.New("transport: not connected")
	}
	_ = conn.SetWriteDeadline(deadlineOf(ctx))

	length := len(data) / 4
	var header []byte
	if length < 0x7f {
		header = []byte{byte(length)}
	} else {
		header = []byte{0x7f, byte(length), byte(length >> 8), byte(length >> 16)}
	}
	if _, err := conn.Write(header); err != nil {
		return errors.Wrap(err, "write frame header")
	}
	if _, err := conn.Write(data); err != nil {
		return errors.Wrap(err, "write frame body")
	}
	return nil
}

func (t *TCP) Recv(ctx context.Context) ([]byte, error) {
	conn := t.currentConn()
	if conn == nil {
		return nil, errors.New("transport: not connected")
	}
	_ = conn.SetReadDeadline(deadlineOf(ctx))

	var first [1]byte
	if _, err := io.ReadFull(conn, first[:]); err != nil {
		return nil, errors.Wrap(err, "read frame header")
	}

	lengthWords := int(first[0] &^ quickAckBit)
	if lengthWords == 0x7f {
		var rest [3]byte
		if _, err := io.ReadFull(conn, rest[:]); err != nil {
			return nil, errors.Wrap(err, "read extended frame length")
		}
		lengthWords = int(rest[0]) | int(rest[1])<<8 | int(rest[2])<<16
	}

	body := make([]byte, lengthWords*4)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, errors.Wrap(err, "read frame body")
	}
	return body, nil
}

func (t *TCP) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func deadlineOf(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}
