package transport

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-faster/errors"

	"github.com/archtg/mtsender/mtproto"
)

var _ mtproto.Connection = (*WebSocket)(nil)

// WebSocket is a Connection that speaks MTProto's websocket transport:
// each ciphertext frame is sent as exactly one binary websocket
// message, so unlike TCP there is no length prefix to manage.
type WebSocket struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocket creates a WebSocket transport dialing target, which
// must be a ws:// or wss:// URL.
func NewWebSocket(target string) *WebSocket {
	return &WebSocket{url: target}
}

func (w *WebSocket) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, w.url, nil)
	if err != nil {
		return errors.Wrap(err, "dial websocket")
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	return nil
}

func (w *WebSocket) currentConn() *websocket.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn
}

func (w *WebSocket) Send(ctx context.Context, data []byte) error {
	conn := w.currentConn()
	if conn == nil {
		return errors.New("transport: not connected")
	}
	if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return errors.Wrap(err, "write websocket frame")
	}
	return nil
}

func (w *WebSocket) Recv(ctx context.Context) ([]byte, error) {
	conn := w.currentConn()
	if conn == nil {
		return nil, errors.New("transport: not connected")
	}
	kind, data, err := conn.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read websocket frame")
	}
	if kind != websocket.MessageBinary {
		return nil, errors.Errorf("transport: unexpected websocket message type %d", kind)
	}
	return data, nil
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}
