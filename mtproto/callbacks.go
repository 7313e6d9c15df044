package mtproto

import "github.com/archtg/mtsender/bin"

// RawUpdate is what Options.UpdateHandler receives for any incoming
// message processMessage's jump table does not otherwise correlate to
// a pending request: a server-pushed update, per spec.md §1's "surfaces
// server-pushed updates through a callback" and §4.8's default-case
// forwarding rule. Object is nil when the constructor itself was
// unrecognized (decodeBody failed with TypeNotFoundError) — Body still
// carries the raw bytes behind it.
type RawUpdate struct {
	ConstructorID uint32
	Body          []byte
	Object        bin.Object
}

// UpdateConnectionState is the connection-state enum Sender reports
// through Options.UpdateCallback, matching spec.md §6's
// updateCallback(state) contract.
type UpdateConnectionState int

const (
	// StateDisconnected means the transport connection is down. It is
	// reported by Disconnect, on the first failed Connect attempt, and
	// at the start of a reconnect, so retry attempts may still follow.
	StateDisconnected UpdateConnectionState = iota
	// StateConnected means the send/receive loops are running against
	// a live connection.
	StateConnected
	// StateBroken means the Sender has stopped and will not recover on
	// its own: reconnection exhausted its retry budget, the loops exited
	// with an error while auto-reconnect is disabled, or the server no
	// longer recognizes the main sender's auth key.
	StateBroken
)

func (s UpdateConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateBroken:
		return "broken"
	default:
		return "disconnected"
	}
}
