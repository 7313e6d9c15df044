// Package transport provides the concrete Connection implementations
// spec.md §6 describes only as an abstraction point: a TCP transport
// speaking MTProto's abridged framing, and a WebSocket transport for
// environments where a raw TCP socket is unavailable or undesirable.
// Both move opaque ciphertext frames only; encryption and retry policy
// stay the sender's concern.
package transport
