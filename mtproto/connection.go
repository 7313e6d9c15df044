package mtproto

import "context"

// Connection is the transport seam described in spec.md §6: a
// connected, full-duplex channel exchanging opaque ciphertext frames
// with one datacenter. Encryption, framing inside the frame, and
// retry policy are entirely Sender's concern; Connection only moves
// bytes.
type Connection interface {
	// Connect performs whatever handshake the underlying transport
	// needs (TCP dial, TLS, the MTProto transport obfuscation header,
	// a WebSocket upgrade) and returns once frames can be exchanged.
	Connect(ctx context.Context) error
	// Send writes one frame. Implementations own their own framing
	// (length prefix, abridged/full/padded transport mode).
	Send(ctx context.Context, data []byte) error
	// Recv blocks for the next frame.
	Recv(ctx context.Context) ([]byte, error)
	// Close releases the underlying socket. Safe to call more than
	// once.
	Close() error
}
